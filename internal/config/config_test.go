package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"dronedispatch/internal/geo"
	"dronedispatch/internal/opt"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 5*time.Second, cfg.Server.ReadHeaderTimeout)
	require.Equal(t, opt.DefaultConfig(), cfg.Engine)
	require.Equal(t, "console", cfg.Sink.Kind)
	require.Equal(t, []string{"localhost:9092"}, cfg.Sink.Kafka.Brokers)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.yaml")
	body := `
server:
  port: 9000
  read_header_timeout: 2s
engine:
  depot: {x: 5, y: 6}
  speed: 1.5
  default_strategy: priority_first
sink:
  kind: file
  path: /tmp/out
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("DATABASE_URL", "postgres://localhost/dispatch")
	t.Setenv("ENGINE_BATTERY_RATE", "4")
	t.Setenv("SINK_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SERVER_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.1")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, 2*time.Second, cfg.Server.ReadHeaderTimeout)
	require.Equal(t, geo.Point{X: 5, Y: 6}, cfg.Engine.Depot)
	require.Equal(t, 1.5, cfg.Engine.Speed)
	require.Equal(t, 4.0, cfg.Engine.BatteryRate)
	require.Equal(t, opt.PriorityFirst, cfg.Engine.DefaultStrategy)
	require.Equal(t, "postgres://localhost/dispatch", cfg.Database.URL)
	require.Equal(t, "file", cfg.Sink.Kind)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Sink.Kafka.Brokers)
	require.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.Server.TrustedProxies)
}

func TestTrustedPrefixes(t *testing.T) {
	s := ServerConfig{TrustedProxies: []string{"10.1.2.3/8", " 192.0.2.1 ", ""}}
	got, err := s.TrustedPrefixes()
	require.NoError(t, err)
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.1/32"),
	}, got)

	_, err = ServerConfig{TrustedProxies: []string{"10.0.0.0/99"}}.TrustedPrefixes()
	require.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"depot outside": "engine:\n  depot: {x: 50, y: 50}\n",
		"bad strategy":  "engine:\n  default_strategy: fastest\n",
		"bad sink":      "sink:\n  kind: carrier-pigeon\n",
		"bad port":      "server:\n  port: 70000\n",
		"bad proxy":     "server:\n  trusted_proxies: [\"not-an-ip\"]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(viper.New(), path)
			require.Error(t, err)
		})
	}
	_, err := Load(viper.New(), filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
