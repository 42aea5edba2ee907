package daemon_test

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/GPTx-global/flightsurety-oracle/oracle/config"
	"github.com/GPTx-global/flightsurety-oracle/oracle/daemon"
	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger/ledgertest"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
	"github.com/GPTx-global/flightsurety-oracle/oracle/wallet"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

var _ = Describe("Daemon", func() {
	var (
		cfg      *config.Config
		gw       *ledgertest.Gateway
		accounts []common.Address
		d        *daemon.Daemon
		ctx      context.Context
		cancel   context.CancelFunc
		runErr   chan error
	)

	BeforeEach(func() {
		cfg = config.SetForTesting("ws://127.0.0.1:8545", testContract, 5)
		cfg.Dispatch.VerdictSeed = 42

		pool, err := wallet.NewPool(cfg.Oracle.Mnemonic, cfg.Oracle.AccountCount)
		Expect(err).NotTo(HaveOccurred())
		accounts = pool.Addresses(cfg.Oracle.AccountOffset, cfg.Oracle.PoolSize)
		Expect(accounts).To(HaveLen(5))

		gw = ledgertest.New()
		scripted := [][]types.Index{{1, 2}, {2, 3}, {4, 5}, {1, 5}, {3, 4}}
		for i, indexes := range scripted {
			gw.Indexes[accounts[i]] = indexes
		}

		d, err = daemon.New(cfg, daemon.WithGateway(gw))
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel = context.WithCancel(context.Background())
		runErr = make(chan error, 1)
	})

	AfterEach(func() {
		cancel()
	})

	run := func() *ledgertest.Stream {
		Expect(d.Start(ctx)).To(Succeed())
		go func() { runErr <- d.Run(ctx) }()

		Eventually(func() *ledgertest.Stream { return gw.Stream(0) }).ShouldNot(BeNil())
		return gw.Stream(0)
	}

	It("registers the whole pool with its assigned indexes", func() {
		Expect(d.Start(ctx)).To(Succeed())
		defer d.Stop()

		Expect(d.Pool().Len()).To(Equal(cfg.Oracle.AccountCount))
		Expect(d.Pool().Addresses(cfg.Oracle.AccountOffset, cfg.Oracle.PoolSize)).To(Equal(accounts))
		Expect(gw.Registered()).To(Equal(accounts))
		oracles := d.Registry().All()
		Expect(oracles).To(HaveLen(5))
		for i, oracle := range oracles {
			Expect(oracle.Address).To(Equal(accounts[i]))
			Expect(oracle.Indexes).To(Equal(gw.Indexes[accounts[i]]))
		}
	})

	It("answers a request with exactly the oracles holding its index", func() {
		stream := run()
		Expect(gw.FromBlocks()).To(Equal([]uint64{0}))

		request := ledgertest.Event(2, "ND1309", 1)
		Expect(stream.Push(request)).To(BeTrue())

		Eventually(func() []ledgertest.Submission { return gw.Submissions() }).Should(HaveLen(2))
		Consistently(func() []ledgertest.Submission { return gw.Submissions() }, 100*time.Millisecond).Should(HaveLen(2))

		var from []common.Address
		for _, s := range gw.Submissions() {
			from = append(from, s.From)
			Expect(s.Response.Index).To(Equal(types.Index(2)))
			Expect(s.Response.Flight).To(Equal("ND1309"))
			Expect(s.Response.Verdict.Valid()).To(BeTrue())
			Expect(s.GasLimit).To(Equal(cfg.Gas.SubmissionLimit))
		}
		Expect(from).To(ConsistOf(accounts[0], accounts[1]))

		Eventually(func() uint64 { return d.Monitor().Counts().Accepted }).Should(Equal(uint64(2)))

		cancel()
		Eventually(runErr).Should(Receive(BeNil()))
		d.Stop()
	})

	It("submits nothing when no oracle matches and drops replayed logs", func() {
		stream := run()

		request := ledgertest.Event(1, "ND1309", 1)
		Expect(stream.Push(ledgertest.Event(9, "ND1310", 2))).To(BeTrue())
		Expect(stream.Push(request)).To(BeTrue())
		Expect(stream.Push(request)).To(BeTrue())

		Eventually(func() uint64 { return d.Listener().Stats().Received }).Should(Equal(uint64(3)))
		Expect(d.Listener().Stats().Duplicates).To(Equal(uint64(1)))

		Eventually(func() []ledgertest.Submission { return gw.Submissions() }).Should(HaveLen(2))
		Consistently(func() []ledgertest.Submission { return gw.Submissions() }, 100*time.Millisecond).Should(HaveLen(2))

		cancel()
		Eventually(runErr).Should(Receive(BeNil()))
		d.Stop()
	})

	It("keeps answering when one submission is rejected", func() {
		gw.SubmitHook = func(_ context.Context, resp ledger.Response, from common.Address) error {
			if from == accounts[1] {
				return errors.New("execution reverted")
			}
			return nil
		}
		stream := run()

		Expect(stream.Push(ledgertest.Event(2, "ND1309", 1))).To(BeTrue())

		Eventually(func() uint64 { return d.Monitor().Counts().Rejected }).Should(Equal(uint64(1)))
		Eventually(func() uint64 { return d.Monitor().Counts().Accepted }).Should(Equal(uint64(1)))
		Expect(gw.Submissions()).To(HaveLen(1))

		cancel()
		Eventually(runErr).Should(Receive(BeNil()))
		d.Stop()
	})

	It("stops with a transport error when the stream fails", func() {
		stream := run()

		stream.Fail(errors.New("websocket: close 1006 (abnormal closure)"))

		var err error
		Eventually(runErr).Should(Receive(&err))
		Expect(errors.Is(err, types.ErrTransport)).To(BeTrue())
		d.Stop()
	})

	It("fails to start when no oracle can register", func() {
		for _, account := range accounts {
			gw.RegisterErr[account] = errors.New("execution reverted")
		}

		err := d.Start(ctx)
		Expect(errors.Is(err, types.ErrRegistration)).To(BeTrue())
	})
})
