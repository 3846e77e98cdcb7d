package main

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"mintflip/internal/app/minting"
	"mintflip/internal/app/tracks"
	"mintflip/internal/app/users"
	"mintflip/internal/auth"
	"mintflip/internal/chain"
	"mintflip/internal/http/middleware"
	"mintflip/internal/httpapi"
	"mintflip/internal/ipfs"
	"mintflip/internal/mint"
	"mintflip/internal/store"
)

func newHTTPHandler(cfg Config, dataStore *store.Store) http.Handler {
	chainClient := newChainClient(cfg)

	tokens := auth.NewManager(cfg.JWTSecret, "mintflip", cfg.JWTExpiry)
	userSvc := users.New(dataStore, auth.NewWalletVerifier(), tokens)
	trackSvc := tracks.New(dataStore)

	var mintSvc httpapi.MintService
	if cfg.MintingEnabled() && chainClient != nil {
		content := ipfs.NewClient(cfg.IPFSAPIURL, cfg.IPFSAPIKey, ipfs.WithGateway(cfg.IPFSGateway))
		pipeline := mint.NewPipeline(content, chainClient, dataStore, dataStore, mint.WithEditionSize(cfg.EditionSize))
		mintSvc = minting.New(pipeline, dataStore)
		log.Info().Int64("edition_size", cfg.EditionSize).Msg("mint pipeline enabled")
	} else {
		log.Warn().Msg("IPFS or chain settings missing, mint endpoints disabled")
	}

	var handler http.Handler = httpapi.New(userSvc, trackSvc, mintSvc, httpapi.WithHealthCheck(dataStore.Ping)).Routes()
	handler = middleware.CORS(cfg.AllowedOrigins)(handler)
	handler = middleware.Recovery()(handler)
	handler = middleware.RequestLogging()(handler)
	return handler
}

func newChainClient(cfg Config) *chain.Client {
	if cfg.ChainRPCURL == "" {
		return nil
	}
	client, err := chain.NewClient(cfg.ChainRPCURL, cfg.ContractAddress, cfg.MinterAddress)
	if err != nil {
		log.Warn().Err(err).Msg("chain client disabled")
		return nil
	}
	return client
}
