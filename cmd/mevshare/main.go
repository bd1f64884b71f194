package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flashbots/go-utils/cli"
	redisadapter "github.com/flashbots/mev-share-client-go/adapters/redis"
	"github.com/flashbots/mev-share-client-go/mevshare"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

var (
	version = "dev" // is set during build process

	// Default values
	defaultDebug          = os.Getenv("DEBUG") == "1"
	defaultLogProd        = os.Getenv("LOG_PROD") == "1"
	defaultLogService     = os.Getenv("LOG_SERVICE")
	defaultMetricsPort    = cli.GetEnv("METRICS_PORT", "8088")
	defaultNetwork        = cli.GetEnv("NETWORK", "mainnet")
	defaultNetworksConfig = os.Getenv("NETWORKS_CONFIG")
	defaultPrivateKey     = os.Getenv("AUTH_PRIVATE_KEY")
	defaultEthEndpoint    = cli.GetEnv("ETH_ENDPOINT", "http://127.0.0.1:8545")
	defaultPollInterval   = cli.GetEnv("POLL_INTERVAL", "2s")
	defaultRedisEndpoint  = os.Getenv("REDIS_ENDPOINT")
	defaultChannelName    = cli.GetEnv("REDIS_CHANNEL_NAME", "hints")
	defaultSimEndpoint    = os.Getenv("SIMULATION_ENDPOINT")
	defaultRateLimit      = cli.GetEnv("RELAY_RATE_LIMIT", "0")

	// Flags
	debugPtr          = flag.Bool("debug", defaultDebug, "print debug output")
	logProdPtr        = flag.Bool("log-prod", defaultLogProd, "log in production mode (json)")
	logServicePtr     = flag.String("log-service", defaultLogService, "'service' tag to logs")
	metricsPortPtr    = flag.String("metrics-port", defaultMetricsPort, "port for metrics and pprof, empty to disable")
	networkPtr        = flag.String("network", defaultNetwork, "network name (mainnet, goerli, sepolia, holesky or one from -networks-config)")
	networksConfigPtr = flag.String("networks-config", defaultNetworksConfig, "yaml file with additional networks")
	privateKeyPtr     = flag.String("private-key", defaultPrivateKey, "hex private key used to sign relay requests, random if empty")
	ethPtr            = flag.String("eth", defaultEthEndpoint, "eth endpoint, ws:// or wss:// to subscribe to heads")
	pollIntervalPtr   = flag.String("poll-interval", defaultPollInterval, "block polling interval for http eth endpoints")
	redisPtr          = flag.String("redis", defaultRedisEndpoint, "redis url, when set watched events are published")
	channelPtr        = flag.String("channel", defaultChannelName, "redis pub/sub channel name string")
	simEndpointPtr    = flag.String("sim-endpoint", defaultSimEndpoint, "simulate on this node instead of the relay")
	rateLimitPtr      = flag.String("rate-limit", defaultRateLimit, "relay calls per second, 0 for no limit")

	// history
	blockStartPtr = flag.Uint64("block-start", 0, "history: first block")
	blockEndPtr   = flag.Uint64("block-end", 0, "history: last block")
	limitPtr      = flag.Uint64("limit", 0, "history: max number of entries")
	offsetPtr     = flag.Uint64("offset", 0, "history: entries to skip")

	// simulate
	targetTxPtr = flag.String("target-tx", "", "simulate: hash of the transaction to backrun")
	backrunPtr  = flag.String("backrun", "", "simulate: signed backrun transaction (hex)")
	blockPtr    = flag.Uint64("block", 0, "simulate: target block, latest+1 if zero")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] watch|history|simulate\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	if *logProdPtr {
		atom := zap.NewAtomicLevel()
		if *debugPtr {
			atom.SetLevel(zap.DebugLevel)
		}

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(os.Stdout),
			atom,
		))
	}
	defer func() { _ = logger.Sync() }()
	if *logServicePtr != "" {
		logger = logger.With(zap.String("service", *logServicePtr))
	}

	mode := flag.Arg(0)
	if mode == "" {
		usage()
		os.Exit(2)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()
	go func() {
		notifier := make(chan os.Signal, 1)
		signal.Notify(notifier, os.Interrupt, syscall.SIGTERM)
		<-notifier
		logger.Info("Shutting down...")
		ctxCancel()
	}()

	logger.Info("Starting mev-share client", zap.String("version", version), zap.String("mode", mode))

	if *metricsPortPtr != "" {
		startMetricsServer(logger, *metricsPortPtr)
	}

	networks := mevshare.DefaultNetworks()
	if *networksConfigPtr != "" {
		var err error
		networks, err = mevshare.LoadNetworksConfig(*networksConfigPtr)
		if err != nil {
			logger.Fatal("Failed to load networks config", zap.Error(err))
		}
	}
	network, err := networks.ByName(*networkPtr)
	if err != nil {
		logger.Fatal("Unknown network", zap.Error(err))
	}

	var signer *mevshare.PrivateKeySigner
	if *privateKeyPtr != "" {
		signer, err = mevshare.NewPrivateKeySignerFromHex(*privateKeyPtr)
	} else {
		signer, err = mevshare.NewRandomSigner()
	}
	if err != nil {
		logger.Fatal("Failed to create signer", zap.Error(err))
	}
	logger.Info("Signing relay requests", zap.String("address", signer.Address().Hex()))

	pollInterval, err := time.ParseDuration(*pollIntervalPtr)
	if err != nil {
		logger.Fatal("Failed to parse poll interval", zap.Error(err))
	}
	provider, err := mevshare.DialEthProvider(ctx, logger, *ethPtr, pollInterval)
	if err != nil {
		logger.Fatal("Failed to connect to eth endpoint", zap.Error(err))
	}
	defer provider.Close()

	rateLimit, err := strconv.ParseFloat(*rateLimitPtr, 64)
	if err != nil {
		logger.Fatal("Failed to parse rate limit", zap.Error(err))
	}

	var opts []mevshare.ClientOption
	if rateLimit > 0 {
		opts = append(opts, mevshare.WithApiOptions(mevshare.WithRateLimit(rate.Limit(rateLimit), 1)))
	}
	if *simEndpointPtr != "" {
		opts = append(opts, mevshare.WithSimulationBackend(mevshare.NewNodeSimulationBackend(*simEndpointPtr)))
	}

	client, err := mevshare.NewClient(logger, signer, network, provider, opts...)
	if err != nil {
		logger.Fatal("Failed to create client", zap.Error(err))
	}
	defer client.Close()

	switch mode {
	case "watch":
		err = watch(ctx, logger, client)
	case "history":
		err = history(ctx, logger, client)
	case "simulate":
		err = simulate(ctx, logger, client, provider)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Command failed", zap.String("mode", mode), zap.Error(err))
	}
}

func startMetricsServer(logger *zap.Logger, port string) {
	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	metricsMux.Handle("/debug/pprof/", http.HandlerFunc(pprof.Index))
	metricsMux.Handle("/debug/pprof/cmdline", http.HandlerFunc(pprof.Cmdline))
	metricsMux.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	metricsMux.Handle("/debug/pprof/symbol", http.HandlerFunc(pprof.Symbol))
	metricsMux.Handle("/debug/pprof/trace", http.HandlerFunc(pprof.Trace))

	go func() {
		metricsServer := &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%s", port),
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           metricsMux,
		}

		err := metricsServer.ListenAndServe()
		if err != nil {
			logger.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}()
}

func watch(ctx context.Context, logger *zap.Logger, client *mevshare.Client) error {
	client.OnTransaction(func(ctx context.Context, tx *mevshare.PendingTransaction) {
		fields := []zap.Field{zap.String("hash", tx.Hash.Hex()), zap.Int("logs", len(tx.Logs))}
		if tx.To != nil {
			fields = append(fields, zap.String("to", tx.To.Hex()))
		}
		if tx.MevGasPrice != nil {
			fields = append(fields, zap.String("mevGasPrice", mevshare.FormatUnits(tx.MevGasPrice.ToInt(), "gwei")))
		}
		logger.Info("Pending transaction", fields...)
	})
	client.OnBundle(func(ctx context.Context, bundle *mevshare.PendingBundle) {
		logger.Info("Pending bundle", zap.String("hash", bundle.Hash.Hex()), zap.Int("txs", len(bundle.Txs)))
	})

	if *redisPtr != "" {
		redisOpts, err := redis.ParseURL(*redisPtr)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		publisher := redisadapter.NewEventPublisher(logger, redisClient, *channelPtr)
		for _, kind := range []mevshare.EventKind{mevshare.TransactionEvent, mevshare.BundleEvent} {
			if err := client.On(string(kind), publisher.Handler()); err != nil {
				return err
			}
		}
		logger.Info("Publishing events to redis", zap.String("channel", *channelPtr))
	}

	sub := client.Subscribe(ctx)
	defer sub.Cancel()
	<-sub.Done()
	return sub.Err()
}

func history(ctx context.Context, logger *zap.Logger, client *mevshare.Client) error {
	info, err := client.GetEventHistoryInfo(ctx)
	if err != nil {
		return err
	}
	logger.Info("Event history",
		zap.Uint64("count", info.Count),
		zap.Uint64("minBlock", info.MinBlock),
		zap.Uint64("maxBlock", info.MaxBlock),
		zap.Uint64("maxLimit", info.MaxLimit),
	)

	entries, err := client.GetEventHistory(ctx, &mevshare.EventHistoryParams{
		BlockStart: *blockStartPtr,
		BlockEnd:   *blockEndPtr,
		Limit:      *limitPtr,
		Offset:     *offsetPtr,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}

func simulate(ctx context.Context, logger *zap.Logger, client *mevshare.Client, provider mevshare.ChainProvider) error {
	if *targetTxPtr == "" || *backrunPtr == "" {
		return errors.New("simulate needs -target-tx and -backrun")
	}
	backrun, err := hexutil.Decode(*backrunPtr)
	if err != nil {
		return fmt.Errorf("decode backrun: %w", err)
	}
	block := *blockPtr
	if block == 0 {
		latest, err := provider.BlockNumber(ctx)
		if err != nil {
			return err
		}
		block = latest + 1
	}

	target := common.HexToHash(*targetTxPtr)
	raw := hexutil.Bytes(backrun)
	res, err := client.SimulateBundle(ctx, mevshare.BundleParams{
		Inclusion: mevshare.MevBundleInclusion{BlockNumber: hexutil.Uint64(block), MaxBlock: hexutil.Uint64(block + 24)},
		Body:      []mevshare.MevBundleBody{{Hash: &target}, {Tx: &raw}},
	}, nil)
	if err != nil {
		return err
	}
	logger.Info("Simulation result",
		zap.Bool("success", res.Success),
		zap.String("error", res.Error),
		zap.Uint64("stateBlock", uint64(res.StateBlock)),
		zap.Uint64("gasUsed", uint64(res.GasUsed)),
		zap.String("profit", mevshare.FormatUnits(res.Profit.ToInt(), "eth")),
	)
	return nil
}
