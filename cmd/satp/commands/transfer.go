package commands

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/satp/src/ledger"
	"github.com/mosaicnetworks/satp/src/satp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	counterpart      string
	assetID          string
	recipientAssetID string
)

//NewTransferCmd returns the command that transfers one asset to a counterpart
func NewTransferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transfer",
		Short:   "Transfer an asset to a counterpart gateway",
		PreRunE: loadConfig,
		RunE:    transfer,
	}
	AddConfigFlags(cmd)
	AddTransferFlags(cmd)
	return cmd
}

//AddTransferFlags adds flags to the transfer command
func AddTransferFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&counterpart, "to", "", "Moniker or public key of the counterpart in gateways.json")
	cmd.Flags().StringVar(&assetID, "asset", "", "Asset to transfer, seeded in the local ledger")
	cmd.Flags().StringVar(&recipientAssetID, "recipient-asset", "", "ID of the asset on the counterpart's ledger")
}

func transfer(cmd *cobra.Command, args []string) error {
	if counterpart == "" || assetID == "" {
		return fmt.Errorf("--to and --asset are required")
	}
	if recipientAssetID == "" {
		recipientAssetID = assetID
	}

	l := ledger.NewInmemLedger(_config.DLTSystem, _config.Logger())
	l.Seed(assetID)

	engine := satp.NewSATP(_config)
	engine.Ledger = l

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}
	defer engine.Shutdown()

	if _, err := engine.RunAsync(context.Background()); err != nil {
		return err
	}

	id, err := engine.Transfer(context.Background(), counterpart, assetID, recipientAssetID)
	if err != nil {
		_config.Logger().WithError(err).WithField("session", id).Error("Transfer failed")
		return err
	}

	_config.Logger().WithFields(logrus.Fields{
		"session": id,
		"asset":   assetID,
		"to":      counterpart,
	}).Info("Transfer complete")

	fmt.Println(id)

	return nil
}
