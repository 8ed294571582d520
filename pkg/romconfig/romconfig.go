// Package romconfig centralizes the boot core's tunables — ICCM
// bounds, SVN ceiling, measurement-log capacity, the reserved PAUSER
// value, and the trust-root resync period — behind a viper-backed
// loader, the same configuration idiom the upstream controller uses
// for its webhook and cosign policy settings.
package romconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/mailbox"
)

// Config is every tunable romconfig loads. Zero values are never valid
// configuration; Load always fills in the documented defaults first.
type Config struct {
	IccmStart uint64
	IccmEnd   uint64

	MaxFirmwareSvn uint32

	MeasurementMaxCount int

	ReservedPauser uint32

	TrustRootResyncPeriod time.Duration

	ActiveMode bool
}

// Default returns the configuration romguard boots with when no
// override file or environment variable is present.
func Default() Config {
	return Config{
		IccmStart:             0x4000_0000,
		IccmEnd:               0x4004_0000,
		MaxFirmwareSvn:        bundle.MaxFirmwareSvn,
		MeasurementMaxCount:   mailbox.MeasurementMaxCount,
		ReservedPauser:        mailbox.ReservedPauser,
		TrustRootResyncPeriod: 5 * time.Minute,
		ActiveMode:            false,
	}
}

// Load builds a viper instance seeded with Default's values, then
// layers a config file (if present at path) and ROMGUARD_-prefixed
// environment variables on top, mirroring the precedence order the
// upstream controller's own config loader uses: defaults, then file,
// then environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROMGUARD")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("iccm_start", def.IccmStart)
	v.SetDefault("iccm_end", def.IccmEnd)
	v.SetDefault("max_firmware_svn", def.MaxFirmwareSvn)
	v.SetDefault("measurement_max_count", def.MeasurementMaxCount)
	v.SetDefault("reserved_pauser", def.ReservedPauser)
	v.SetDefault("trust_root_resync_period", def.TrustRootResyncPeriod.String())
	v.SetDefault("active_mode", def.ActiveMode)

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return Config{}, fmt.Errorf("romconfig: reading %s: %w", path, err)
				}
			}
		} else if !os.IsNotExist(statErr) {
			return Config{}, fmt.Errorf("romconfig: stat %s: %w", path, statErr)
		}
	}

	resync, err := time.ParseDuration(v.GetString("trust_root_resync_period"))
	if err != nil {
		return Config{}, fmt.Errorf("romconfig: trust_root_resync_period: %w", err)
	}

	cfg := Config{
		IccmStart:             v.GetUint64("iccm_start"),
		IccmEnd:               v.GetUint64("iccm_end"),
		MaxFirmwareSvn:        uint32(v.GetUint32("max_firmware_svn")),
		MeasurementMaxCount:   v.GetInt("measurement_max_count"),
		ReservedPauser:        uint32(v.GetUint32("reserved_pauser")),
		TrustRootResyncPeriod: resync,
		ActiveMode:            v.GetBool("active_mode"),
	}

	if cfg.IccmEnd <= cfg.IccmStart {
		return Config{}, fmt.Errorf("romconfig: iccm_end must exceed iccm_start")
	}
	if cfg.MaxFirmwareSvn == 0 {
		return Config{}, fmt.Errorf("romconfig: max_firmware_svn must be nonzero")
	}

	return cfg, nil
}
