package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpamm/internal/amm"
	"cpamm/internal/chain"
	"cpamm/internal/config"
	"cpamm/internal/model"
	"cpamm/internal/pair"
	"cpamm/internal/replay"
)

type quoteOutput struct {
	ChainID uint64         `json:"chain_id"`
	Block   uint64         `json:"block"`
	Pair    model.PairMeta `json:"pair"`
	Quote   *pairQuote     `json:"quote,omitempty"`
}

type pairQuote struct {
	Direction string `json:"direction"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  uint64 `json:"amount_in,string"`
	AmountOut uint64 `json:"amount_out,string"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	pairs, err := replay.ParseAddresses(cfg.Pairs)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("pair address is required")
	}
	dir, err := amm.ParseDirection(cfg.Direction)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	block := cfg.Block
	if block == 0 {
		if block, err = chainClient.LatestBlockNumber(ctx); err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
	}

	reader := &pair.Reader{
		Caller: chainClient,
		Tokens: pair.NewTokenMetaCache(),
		Retry:  pair.RetryConfig{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBackoff},
		Logger: logger,
	}

	logger.Info("quote start",
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.Uint64("block", block),
		zap.Int("pairs", len(pairs)),
		zap.Uint64("amount_in", cfg.AmountIn),
		zap.String("direction", dir.String()),
	)

	for _, addr := range pairs {
		meta, st, err := reader.FetchPairMeta(ctx, addr)
		if err != nil {
			return fmt.Errorf("pair %s: %w", addr.Hex(), err)
		}
		if cfg.Block > 0 {
			if st, err = reader.FetchState(ctx, addr, new(big.Int).SetUint64(cfg.Block)); err != nil {
				return fmt.Errorf("pair %s at block %d: %w", addr.Hex(), cfg.Block, err)
			}
			meta.Reserve0 = st.Reserve0.String()
			meta.Reserve1 = st.Reserve1.String()
			meta.BlockTimestampLast = st.BlockTimestampLast
		}

		out := quoteOutput{ChainID: chainID.Uint64(), Block: block, Pair: meta}
		if cfg.AmountIn > 0 {
			res, err := pair.Quote(st, cfg.AmountIn, dir)
			if err != nil {
				return fmt.Errorf("quote %s: %w", addr.Hex(), err)
			}
			out.Quote = &pairQuote{
				Direction: res.Direction.String(),
				TokenIn:   res.TokenIn.Hex(),
				TokenOut:  res.TokenOut.Hex(),
				AmountIn:  res.AmountIn,
				AmountOut: res.AmountOut,
			}
		}
		if err := printJSON(cmd, out); err != nil {
			return err
		}
	}
	return nil
}
