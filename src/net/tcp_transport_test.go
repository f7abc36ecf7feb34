package net

import (
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/satp/src/common"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/sirupsen/logrus"
)

func TestTCPTransport_BadAddr(t *testing.T) {
	_, err := NewTCPTransport("0.0.0.0:0", "", 1, 0, common.NewTestEntry(t, logrus.DebugLevel, "net"))
	if err != errNotAdvertisable {
		t.Fatalf("err: %v", err)
	}
}

func TestTCPTransport_WithAdvertise(t *testing.T) {
	trans, err := NewTCPTransport("0.0.0.0:0", "127.0.0.1:12345", 1, 0, common.NewTestEntry(t, logrus.DebugLevel, "net"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()

	if trans.AdvertiseAddr() != "127.0.0.1:12345" {
		t.Fatalf("bad: %v", trans.AdvertiseAddr())
	}
}

func TestNetworkTransport_PooledConn(t *testing.T) {
	logger := common.NewTestEntry(t, logrus.DebugLevel, "net")

	// Transport 1 is consumer
	trans1, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans1.Close()
	go trans1.Listen()
	rpcCh := trans1.Consumer()

	args := odap.TransferCommenceRequest{
		Header:           testHeader(odap.TypeCommenceRequest),
		HashAssetProfile: "9f86d081",
	}
	resp := odap.TransferCommenceResponse{
		Header: testHeader(odap.TypeCommenceResponse),
	}

	// Listen for requests
	go func() {
		for {
			select {
			case rpc := <-rpcCh:
				rpc.Respond(&resp, nil)
			case <-time.After(200 * time.Millisecond):
				return
			}
		}
	}()

	// Transport 2 makes outbound request, 3 conn pool
	trans2, err := NewTCPTransport("127.0.0.1:0", "", 3, time.Second, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans2.Close()

	wg := &sync.WaitGroup{}
	wg.Add(5)

	commence := func() {
		defer wg.Done()
		var out odap.TransferCommenceResponse
		if err := trans2.TransferCommence(trans1.LocalAddr(), &args, &out); err != nil {
			t.Errorf("err: %v", err)
		}
	}

	// Parallel requests stress the conn pool
	for i := 0; i < 5; i++ {
		go commence()
	}

	wg.Wait()

	addr := trans1.LocalAddr()
	if len(trans2.connPool[addr]) != 3 {
		t.Fatalf("Expected 3 pooled conns, got %d", len(trans2.connPool[addr]))
	}
}
