// Package config provides user configuration management for pktlink.
//
// This package manages a YAML-based configuration file that stores engine
// timeouts and retry budgets, the transfer chunk size, server settings and
// named links.
//
// # Configuration File Location
//
// The file lives at pktlink/config.yaml under os.UserConfigDir, which is
// $XDG_CONFIG_HOME or $HOME/.config on Linux. PKTLINK_CONFIG overrides the
// whole path, and the CLI's --config flag overrides both.
//
// Durations are written in Go syntax ("10s", "250ms"). Settings missing from
// the file keep their defaults.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SetLink("bench", "tcp://192.168.1.20:7070", "bench rig")
//	e := engine.New(conn, filexfer.Protocol{}, registry.Engine.Options()...)
//
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// LoadRegistry caches the registry it reads; ReloadRegistry drops the cache.
// SaveTo replaces the file atomically through a temporary file in the same
// directory.
package config
