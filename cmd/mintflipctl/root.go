package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mintflip/internal/cart"
	"mintflip/internal/catalog"
	"mintflip/internal/chain"
	"mintflip/internal/logging"
	"mintflip/internal/track"
)

// tokenKey is the storage key of the saved API token.
const tokenKey = "mintflip_token"

const cartTTL = 30 * 24 * time.Hour

// app carries the settings and clients shared by every command.
type app struct {
	apiURL    string
	wallet    string
	token     string
	cartDir   string
	redisAddr string
	rpcURL    string
	contract  string
	gateway   string
	logLevel  string

	storage cart.Storage
	catalog *catalog.Client
}

func newRootCmd() *cobra.Command {
	_ = godotenv.Load()

	a := &app{}
	root := &cobra.Command{
		Use:          "mintflipctl",
		Short:        "Browse, collect and mint AI-generated music NFTs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.apiURL, "api", envOrDefault("MINTFLIP_API_URL", "http://localhost:8080"), "catalog API base URL")
	flags.StringVar(&a.wallet, "wallet", os.Getenv("MINTFLIP_WALLET"), "connected wallet address")
	flags.StringVar(&a.token, "token", os.Getenv("MINTFLIP_TOKEN"), "API bearer token (defaults to the saved login)")
	flags.StringVar(&a.cartDir, "cart-dir", envOrDefault("MINTFLIP_CART_DIR", defaultCartDir()), "directory for the file cart store")
	flags.StringVar(&a.redisAddr, "redis", os.Getenv("MINTFLIP_REDIS_ADDR"), "store carts in Redis at this address instead of files")
	flags.StringVar(&a.rpcURL, "rpc", os.Getenv("CHAIN_RPC_URL"), "JSON-RPC endpoint of the chain node")
	flags.StringVar(&a.contract, "contract", os.Getenv("CHAIN_CONTRACT_ADDRESS"), "music NFT contract address")
	flags.StringVar(&a.gateway, "gateway", envOrDefault("IPFS_GATEWAY_URL", track.DefaultGateway), "IPFS gateway used for media links")
	flags.StringVar(&a.logLevel, "log-level", envOrDefault("LOG_LEVEL", "warn"), "log level")

	root.AddCommand(
		newLoginCmd(a),
		newTracksCmd(a),
		newCartCmd(a),
		newCheckoutCmd(a),
		newListenCmd(a),
		newMintCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context) error {
	logging.SetGlobalLogger(logging.New(logging.Config{Level: a.logLevel, Format: "text", Output: os.Stderr}))

	if a.redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: a.redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", a.redisAddr, err)
		}
		a.storage = cart.NewRedisStorage(client, cartTTL)
	} else {
		fs, err := cart.NewFileStorage(a.cartDir)
		if err != nil {
			return err
		}
		a.storage = fs
	}

	if a.token == "" {
		if saved, err := a.storage.Get(ctx, tokenKey); err == nil {
			a.token = string(saved)
		} else if !errors.Is(err, cart.ErrNotFound) {
			log.Warn().Err(err).Msg("read saved token failed")
		}
	}

	a.catalog = catalog.NewClient(a.apiURL, catalog.WithGateway(a.gateway), catalog.WithToken(a.token))
	return nil
}

// ledger loads the cart of the connected wallet.
func (a *app) ledger(ctx context.Context) *cart.Ledger {
	l := cart.New(a.storage)
	l.SwitchWallet(ctx, a.wallet)
	return l
}

// chainClient returns a contract client that sends from the connected wallet.
func (a *app) chainClient() (*chain.Client, error) {
	if a.rpcURL == "" || a.contract == "" {
		return nil, errors.New("--rpc and --contract (CHAIN_RPC_URL, CHAIN_CONTRACT_ADDRESS) are required")
	}
	return chain.NewClient(a.rpcURL, a.contract, a.wallet)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func defaultCartDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".mintflip"
	}
	return filepath.Join(dir, "mintflip")
}
