//go:build integration

package datastore

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

const mysqlImage = "mysql:8.4"

// TestMain starts one MySQL container for the package and registers it as an
// extra backend, so every store test also runs against MySQL. Each test gets
// its own database.
func TestMain(m *testing.M) {
	os.Exit(runWithMySQL(m))
}

func runWithMySQL(m *testing.M) int {
	ctx := context.Background()
	ctr, err := tcmysql.Run(ctx, mysqlImage,
		tcmysql.WithDatabase("vidguard"),
		tcmysql.WithUsername("root"),
		tcmysql.WithPassword("vidguard"),
	)
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			fmt.Fprintf(os.Stderr, "terminating mysql container: %v\n", err)
		}
	}()
	if err != nil {
		fmt.Fprintf(os.Stderr, "starting mysql container: %v\n", err)
		return 1
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mysql host: %v\n", err)
		return 1
	}
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mysql port: %v\n", err)
		return 1
	}

	base := MySQLConfig{Host: host, Port: port.Port(), Username: "root", Password: "vidguard", Database: "vidguard"}
	admin, err := NewMySQLStore(base)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connecting to mysql: %v\n", err)
		return 1
	}
	defer func() { _ = admin.Close() }()

	extraStoreFactories["mysql"] = mysqlFactory(admin, base)
	return m.Run()
}

func mysqlFactory(admin *MySQLStore, base MySQLConfig) storeFactory {
	var seq atomic.Int64
	return func(t *testing.T) Interface {
		t.Helper()
		cfg := base
		cfg.Database = fmt.Sprintf("vidguard_%d", seq.Add(1))
		require.NoError(t, admin.DB.Exec("CREATE DATABASE "+cfg.Database).Error)

		s, err := NewMySQLStore(cfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Close()
			_ = admin.DB.Exec("DROP DATABASE " + cfg.Database).Error
		})
		return s
	}
}

func TestMySQLPoolStats(t *testing.T) {
	s := extraStoreFactories["mysql"](t)
	ps, ok := poolOf(s)
	require.True(t, ok)
	stats, err := ps.PoolStats()
	require.NoError(t, err)
	require.Equal(t, 50, stats.MaxOpenConnections)
}
