package postgres

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", Database: "market", User: "u", Password: "p@ss"})
	require.Equal(t, "postgres://u:p%40ss@db:5432/market?sslmode=disable", got)

	got = DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"})
	require.Equal(t, "postgres://x", got)
}

func TestNumericRoundTrip(t *testing.T) {
	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	got, err := parseNumeric(numericText(huge))
	require.NoError(t, err)
	require.Equal(t, huge.String(), got.String())

	require.Equal(t, "0", numericText(nil))

	_, err = parseNumeric("1.5")
	require.Error(t, err)
}

func TestParseAddr(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	got, err := parseAddr(hexAddr(a))
	require.NoError(t, err)
	require.Equal(t, a, got)

	_, err = parseAddr("not-an-address")
	require.Error(t, err)
}

func TestMigrationFiles(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.Equal(t, []string{"001_market.sql"}, names)
}

func TestAuditConsignment(t *testing.T) {
	require.Equal(t, int64(7), *auditConsignment(map[string]any{"consignment_id": uint64(7)}))
	require.Equal(t, int64(3), *auditConsignment(map[string]any{"consignment_id": 3}))
	require.Nil(t, auditConsignment(map[string]any{"field": "outbid_bps"}))
	require.Nil(t, auditConsignment(nil))
}
