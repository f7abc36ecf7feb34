package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/satp/src/satp"
	"github.com/spf13/cobra"
)

//NewRunCmd returns the command that starts a gateway
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run gateway",
		PreRunE: loadConfig,
		RunE:    runGateway,
	}
	AddConfigFlags(cmd)
	return cmd
}

func runGateway(cmd *cobra.Command, args []string) error {
	engine := satp.NewSATP(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	go shutdownOnSignal(engine)

	engine.Run()

	engine.Shutdown()

	return nil
}

func shutdownOnSignal(engine *satp.SATP) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	<-signalCh

	_config.Logger().Info("Received an interrupt, stopping gateway")

	engine.Shutdown()
}
