package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shardMap = `
datasources:
  ds0: {dialect: mysql, dsn: "app:pw@tcp(db0:3306)/app?parseTime=true"}
  ds1: {dialect: sqlite, dsn: "file:ds1.db"}
tables:
  orders:
    key: user_id
    missing_key: reject
    hash: {count: 4, pattern: "orders_{n}", datasources: [ds0, ds1]}
  users:
    key: region
    static:
      - {keys: [cn, jp], table: users_asia, datasource: ds0}
      - {default: true, table: users, datasource: ds1}
`

func writeMap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidate(t *testing.T) {
	path := writeMap(t, shardMap)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 data sources, 2 tables")
	assert.Contains(t, out, "orders by user_id: 4 tables, missing key reject")
	assert.Contains(t, out, "users by region: 2 tables, missing key broadcast")

	out, err = execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)
	var resp struct {
		Status string         `json:"status"`
		Data   []TableSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []TableSummary{
		{Table: "orders", Key: "user_id", MissingKey: "reject", Tables: 4},
		{Table: "users", Key: "region", MissingKey: "broadcast", Tables: 2},
	}, resp.Data)
}

func TestValidateInvalid(t *testing.T) {
	path := writeMap(t, `
datasources:
  a: {dialect: db2, dsn: x}
tables:
  t: {hash: {count: 2, pattern: "t_{n}", datasources: nope}}
`)
	out, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
	assert.Len(t, resp.Error.Details, 3)

	_, err = execute(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestRoute(t *testing.T) {
	path := writeMap(t, shardMap)

	out, err := execute(t, "route", path, "orders", "1", "2")
	require.NoError(t, err)
	assert.Equal(t, "ds0:orders_2\nds1:orders_1\n", out)

	out, err = execute(t, "route", path, "users", "jp")
	require.NoError(t, err)
	assert.Equal(t, "ds0:users_asia\n", out)

	out, err = execute(t, "route", path, "users")
	require.NoError(t, err)
	assert.Contains(t, out, "(broadcast)")

	out, err = execute(t, "--format", "json", "route", path, "orders", "5")
	require.NoError(t, err)
	var resp struct {
		Data RouteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Routes, 1)
	assert.Equal(t, "orders_1", resp.Data.Routes[0].Name)
	assert.Equal(t, "ds1", resp.Data.Routes[0].DataSource)

	_, err = execute(t, "route", path, "orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing sharding key")
	assert.Equal(t, ExitFailure, ExitCode(err))

	_, err = execute(t, "--format", "yaml", "route", path, "orders", "1")
	require.Error(t, err)
}

func TestParseKeys(t *testing.T) {
	assert.Equal(t, []any{int64(7), "cn", int64(-3)}, parseKeys([]string{"7", "cn", "-3"}))
}
