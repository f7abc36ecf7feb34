package satp

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/satp/src/claims"
	"github.com/mosaicnetworks/satp/src/common"
	"github.com/mosaicnetworks/satp/src/config"
	"github.com/mosaicnetworks/satp/src/crypto/keys"
	"github.com/mosaicnetworks/satp/src/gateway"
	"github.com/mosaicnetworks/satp/src/ledger"
	"github.com/mosaicnetworks/satp/src/net"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/mosaicnetworks/satp/src/peers"
	"github.com/mosaicnetworks/satp/src/service"
	"github.com/mosaicnetworks/satp/src/session"
	"github.com/mosaicnetworks/satp/src/wal"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SATP is a gateway with everything it runs on.
type SATP struct {
	Config    *config.Config
	Identity  *keys.Identity
	Peers     *peers.PeerSet
	Store     session.Store
	Log       wal.Log
	Claims    claims.Store
	Transport net.Transport
	Gateway   *gateway.Gateway
	Service   *service.Service

	// Ledger is the connector to the ledger this gateway fronts. An in-memory
	// ledger named after Config.DLTSystem is created when it is nil.
	Ledger ledger.Connector

	db           *badger.DB
	shutdownOnce sync.Once
	logger       *logrus.Entry
}

// NewSATP is a factory method to produce a SATP instance.
func NewSATP(c *config.Config) *SATP {
	return &SATP{
		Config: c,
		logger: c.Logger(),
	}
}

// Init initialises the engine: key, counterparts, stores, ledger, transport,
// gateway and service, in that order.
func (s *SATP) Init() error {
	if err := s.initKey(); err != nil {
		s.logger.WithError(err).Error("satp.go:Init() initKey")
		return err
	}

	if err := s.initPeers(); err != nil {
		s.logger.WithError(err).Error("satp.go:Init() initPeers")
		return err
	}

	if err := s.initStore(); err != nil {
		s.logger.WithError(err).Error("satp.go:Init() initStore")
		return err
	}

	s.initLedger()

	if err := s.initTransport(); err != nil {
		s.logger.WithError(err).Error("satp.go:Init() initTransport")
		return err
	}

	s.initGateway()

	if !s.Config.NoService {
		s.initService()
	}

	return nil
}

func (s *SATP) initKey() error {
	if s.Config.Key == nil {
		simpleKeyfile := keys.NewSimpleKeyfile(s.Config.Keyfile())

		privKey, err := simpleKeyfile.ReadKey()
		if err != nil {
			s.logger.Errorf("Error reading private key from file: %v", err)
			return err
		}

		s.Config.Key = privKey
	}

	s.Identity = keys.NewIdentity(s.Config.Key)

	return nil
}

func (s *SATP) initPeers() error {
	peerStore := peers.NewJSONPeerSet(s.Config.DataDir)

	ps, err := peerStore.PeerSet()
	if os.IsNotExist(err) {
		s.logger.WithField("path", peerStore.Path()).Debug("No counterparts file")
		s.Peers = peers.NewPeerSet(nil)
		return nil
	}
	if err != nil {
		return err
	}

	s.Peers = ps

	return nil
}

func (s *SATP) initStore() error {
	if !s.Config.Store {
		s.Store = session.NewInmemStore()
		s.Log = wal.NewInmemLog()
		s.Claims = claims.NewInmemStore()

		s.logger.Debug("created new in-mem stores")

		return nil
	}

	s.logger.WithField("path", s.Config.DatabaseDir).Debug("Attempting to load or create database")

	db, err := common.OpenBadger(s.Config.DatabaseDir, s.logger)
	if err != nil {
		return errors.Wrapf(err, "opening database %s", s.Config.DatabaseDir)
	}

	s.db = db
	s.Store = session.NewBadgerStore(db)
	s.Log = wal.NewBadgerLog(db)
	s.Claims = claims.NewBadgerStore(db)

	return nil
}

func (s *SATP) initLedger() {
	if s.Ledger == nil {
		s.Ledger = ledger.NewInmemLedger(s.Config.DLTSystem, s.logger)
	}
}

func (s *SATP) initTransport() error {
	transport, err := net.NewTCPTransport(
		s.Config.BindAddr,
		s.Config.AdvertiseAddr,
		s.Config.MaxPool,
		s.Config.TCPTimeout,
		s.logger,
	)
	if err != nil {
		return err
	}

	s.Transport = transport

	return nil
}

func (s *SATP) initGateway() {
	s.Gateway = gateway.New(
		GatewayConfig(s.Config),
		s.Identity,
		s.Store,
		s.Log,
		s.Claims,
		s.Ledger,
		s.Transport,
	)
}

func (s *SATP) initService() {
	s.Service = service.NewService(s.Config.ServiceAddr, s.Gateway, s.logger)
}

// GatewayConfig extracts the protocol parameters of a configuration.
func GatewayConfig(c *config.Config) *gateway.Config {
	return &gateway.Config{
		Moniker:            c.Moniker,
		Version:            c.Version,
		DLTSystem:          c.DLTSystem,
		SupportedDLTs:      c.SupportedDLTs,
		MaxRetries:         c.MaxRetries,
		MaxTimeout:         c.MaxTimeout,
		LockEvidenceTTL:    c.LockEvidenceTTL,
		CrashCheckInterval: c.CrashCheckInterval,
		ServerTimeout:      c.ServerTimeout,
		Logger:             c.BaseLogger(),
	}
}

// RunAsync serves RPCs and the HTTP service in the background, then recovers
// the open sessions.
func (s *SATP) RunAsync(ctx context.Context) ([]gateway.Outcome, error) {
	s.Gateway.RunAsync()

	if s.Service != nil {
		go s.Service.Serve()
	}

	return s.recover(ctx)
}

// Run recovers the open sessions in the background and serves RPCs until the
// gateway is shut down.
func (s *SATP) Run() {
	if s.Service != nil {
		go s.Service.Serve()
	}

	go s.recover(context.Background())

	s.Gateway.Run()
}

func (s *SATP) recover(ctx context.Context) ([]gateway.Outcome, error) {
	outcomes, err := s.Gateway.RecoverOpenSessions(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Recovering open sessions")
		return nil, err
	}

	for _, o := range outcomes {
		fields := logrus.Fields{
			"session": o.SessionID,
			"role":    o.Role,
			"action":  o.Action,
		}
		if o.Err != nil {
			s.logger.WithFields(fields).WithError(o.Err).Warn("Recovery")
		} else {
			s.logger.WithFields(fields).Info("Recovery")
		}
	}

	return outcomes, nil
}

// Transfer sends asset assetID to the counterpart named by moniker or public
// key in gateways.json. The asset is created under recipientAssetID on the
// counterpart's ledger.
func (s *SATP) Transfer(ctx context.Context, counterpart string, assetID string, recipientAssetID string) (string, error) {
	peer, ok := s.Peers.Lookup(counterpart)
	if !ok {
		return "", fmt.Errorf("unknown counterpart %s", counterpart)
	}

	if len(peer.DLTSystems) == 0 {
		return "", fmt.Errorf("counterpart %s fronts no ledger", counterpart)
	}

	pub := s.Identity.PublicKeyHex()

	params := gateway.TransferParams{
		LoggingProfile:       "default",
		AccessControlProfile: "default",
		ApplicationProfile:   "default",
		PayloadProfile: odap.PayloadProfile{
			AssetProfile: odap.AssetProfile{
				Issuer:    pub,
				AssetCode: assetID,
			},
			Capabilities: "transfer",
		},
		OriginatorPubKey:          pub,
		BeneficiaryPubKey:         peer.PubKeyString(),
		RecipientGatewayPubKey:    peer.PubKeyString(),
		RecipientGatewayDLTSystem: peer.DLTSystems[0],
		RecipientGatewayAddr:      peer.NetAddr,
		SourceLedgerAssetID:       assetID,
		RecipientLedgerAssetID:    recipientAssetID,
	}

	s.logger.WithFields(logrus.Fields{
		"counterpart": counterpart,
		"asset":       assetID,
		"dlt":         params.RecipientGatewayDLTSystem,
	}).Debug("Transfer")

	return s.Gateway.Transfer(ctx, params)
}

// Shutdown stops the gateway and closes the database. It is safe to call more
// than once.
func (s *SATP) Shutdown() {
	s.shutdownOnce.Do(func() {
		if s.Gateway != nil {
			s.Gateway.Shutdown()
		} else if s.Transport != nil {
			s.Transport.Close()
		}

		if s.db != nil {
			if err := s.db.Close(); err != nil {
				s.logger.WithError(err).Error("Closing database")
			}
		}
	})
}
