package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
	isBool                               bool
	// viperKey, when set, lets the flag override that configuration key.
	viperKey string
}

var (
	configFlag = commandLineFlag{
		name:      "config",
		shorthand: "c",
		usage:     "config file (default is $XDG_CONFIG_HOME/licsync/config.yaml)",
	}
	quietFlag = commandLineFlag{
		name:      "quiet",
		shorthand: "q",
		usage:     "suppress log output on stderr",
		isBool:    true,
	}
	hostFlag = commandLineFlag{
		name:      "host",
		shorthand: "s",
		usage:     "server host",
		viperKey:  "server.host",
	}
	portFlag = commandLineFlag{
		name:      "port",
		shorthand: "p",
		usage:     "server port",
		viperKey:  "server.port",
	}
	collectionFlag = commandLineFlag{
		name:  "collection",
		usage: "license collection (default: every collection for reads)",
	}
	productIDFlag = commandLineFlag{
		name:  "product",
		usage: "product id of the license",
	}
	productNameFlag = commandLineFlag{
		name:  "product-name",
		usage: "product name of the license",
	}
	emailFlag = commandLineFlag{
		name:  "email",
		usage: "buyer email",
	}
	yesFlag = commandLineFlag{
		name:      "yes",
		shorthand: "y",
		usage:     "skip confirmation",
		isBool:    true,
	}
)

func initFlags(cmd *cobra.Command, flags ...commandLineFlag) {
	flags = append([]commandLineFlag{configFlag, quietFlag}, flags...)
	for _, flag := range flags {
		if flag.isBool {
			cmd.Flags().BoolP(flag.name, flag.shorthand, flag.defaultValue == "true", flag.usage)
			continue
		}
		cmd.Flags().StringP(flag.name, flag.shorthand, flag.defaultValue, flag.usage)
	}
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, flags ...commandLineFlag) error {
	for _, flag := range flags {
		if flag.viperKey == "" {
			continue
		}
		if err := v.BindPFlag(flag.viperKey, cmd.Flags().Lookup(flag.name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag.name, err)
		}
	}
	return nil
}
