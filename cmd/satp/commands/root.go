package commands

import (
	"github.com/mosaicnetworks/satp/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for SATP gateways
var RootCmd = &cobra.Command{
	Use:              "satp",
	Short:            "SATP asset transfer gateway",
	TraverseChildren: true,
}
