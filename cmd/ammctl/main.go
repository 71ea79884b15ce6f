// ====================================
// File: cmd/ammctl/main.go
// ====================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openamm/cpmm-engine/internal/batch"
	"github.com/openamm/cpmm-engine/internal/blockchain/solbc"
	"github.com/openamm/cpmm-engine/internal/cluster"
	"github.com/openamm/cpmm-engine/internal/config"
	"github.com/openamm/cpmm-engine/internal/connection"
	"github.com/openamm/cpmm-engine/internal/dex/cpmm"
	"github.com/openamm/cpmm-engine/internal/types"
	"github.com/openamm/cpmm-engine/internal/utils/logger"
	"github.com/openamm/cpmm-engine/internal/wallet"
)

const usage = `Usage: ammctl [-config path] <command> [flags]

Commands:
  health            probe the RPC endpoint and print connection state
  create-pool       create a new constant-product pool
  add-liquidity     deposit both sides into a pool
  remove-liquidity  burn LP tokens and withdraw both sides
  swap-in           swap an exact input amount
  swap-out          swap for an exact output amount
  lock              lock LP tokens for fee accrual
  harvest           claim fees from a locked position
  batch-swap        run many swaps from a JSON file with bounded concurrency
`

func main() {
	configPath := flag.String("config", "configs/config.json", "path to the JSON config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)
	args := flag.Args()[1:]

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ammctl: load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAge,
		Compress:    cfg.Log.Compress,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ammctl: init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, command, args, cfg, log); err != nil {
		log.LogError("Command failed", err, zap.String("command", command))
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, cfg *config.Config, log *logger.Logger) error {
	cl, err := cluster.Parse(cfg.Cluster)
	if err != nil {
		return err
	}

	client := solbc.NewClient(cfg.RPCURL, log.Logger)
	conn := connection.NewManager(func(ctx context.Context) error {
		_, err := client.GetVersion(ctx)
		return err
	}, connection.Config{MaxRetries: cfg.MaxRetries}, log.Logger)

	if command == "health" {
		err := conn.CheckConnection(ctx)
		state := conn.State()
		fmt.Printf("endpoint: %s\nstatus: %s\nretries: %d/%d\n",
			cfg.RPCURL, state.Status, state.RetryCount, state.MaxRetries)
		if state.LastError != "" {
			fmt.Printf("last error: %s\n", state.LastError)
		}
		return err
	}

	if err := conn.CheckConnection(ctx); err != nil {
		return fmt.Errorf("rpc endpoint unreachable: %w", err)
	}

	w, err := wallet.NewWallet(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	log.Info("Wallet loaded", zap.String("address", w.String()), zap.String("cluster", cl.String()))

	level, err := types.ParsePriorityLevel(cfg.Priority)
	if err != nil {
		return err
	}
	profile := level.Profile()

	computeLimit := uint32(cfg.ComputeUnitLimit)
	if computeLimit == 0 {
		computeLimit = profile.ComputeUnits
	}
	engine, err := cpmm.NewEngine(client, w, cl, cpmm.Config{
		ComputeLimit: computeLimit,
		PriorityFee:  profile.MicroLamports,
		Commitment:   rpc.CommitmentType(cfg.Commitment),
		Simulate:     cfg.Simulate,
	}, log.Logger)
	if err != nil {
		return err
	}

	switch command {
	case "create-pool":
		return runCreatePool(ctx, engine, args)
	case "add-liquidity":
		return runAddLiquidity(ctx, engine, cfg, args)
	case "remove-liquidity":
		return runRemoveLiquidity(ctx, engine, cfg, args)
	case "swap-in":
		return runSwapIn(ctx, engine, cfg, args)
	case "swap-out":
		return runSwapOut(ctx, engine, cfg, args)
	case "lock":
		return runLock(ctx, engine, args)
	case "harvest":
		return runHarvest(ctx, engine, args)
	case "batch-swap":
		return runBatchSwap(ctx, engine, cfg, log, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func parseAmount(s, what string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("missing required flag -%s", what)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return d, nil
}

func printResult(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCreatePool(ctx context.Context, engine *cpmm.Engine, args []string) error {
	fs := flag.NewFlagSet("create-pool", flag.ExitOnError)
	mintA := fs.String("mint-a", "", "first token mint")
	mintB := fs.String("mint-b", "", "second token mint")
	amountA := fs.String("amount-a", "", "initial deposit of mint-a, human units")
	amountB := fs.String("amount-b", "", "initial deposit of mint-b, human units")
	startIn := fs.Duration("start-in", 0, "delay before the pool opens for trading")
	feeIndex := fs.Int("fee-config", 0, "fee tier index")
	if err := fs.Parse(args); err != nil {
		return err
	}

	amtA, err := parseAmount(*amountA, "amount-a")
	if err != nil {
		return err
	}
	amtB, err := parseAmount(*amountB, "amount-b")
	if err != nil {
		return err
	}
	params := cpmm.CreatePoolParams{
		MintA:          *mintA,
		MintB:          *mintB,
		AmountA:        amtA,
		AmountB:        amtB,
		FeeConfigIndex: *feeIndex,
	}
	if *startIn > 0 {
		params.StartTime = time.Now().Add(*startIn)
	}
	result, err := engine.CreatePool(ctx, params)
	if err != nil {
		return err
	}
	return printResult(result)
}

func runAddLiquidity(ctx context.Context, engine *cpmm.Engine, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("add-liquidity", flag.ExitOnError)
	poolID := fs.String("pool", "", "pool id (optional when mints are given)")
	mintA := fs.String("mint-a", "", "first token mint, used when -pool is absent")
	mintB := fs.String("mint-b", "", "second token mint, used when -pool is absent")
	amount := fs.String("amount", "", "deposit amount of the authoritative side, human units")
	baseIn := fs.Bool("base-in", true, "the amount refers to the pool's base side")
	slippage := fs.Uint64("slippage", uint64(cfg.SlippageBps), "slippage tolerance, bps")
	best := fs.Bool("best", false, "pick the best pool for the mint pair")
	sortBy := fs.String("sort", string(cpmm.SortByLiquidity), "best-pool criterion: liquidity or volume24h")
	if err := fs.Parse(args); err != nil {
		return err
	}

	amt, err := parseAmount(*amount, "amount")
	if err != nil {
		return err
	}
	result, err := engine.AddLiquidity(ctx, cpmm.AddLiquidityParams{
		PoolID:         *poolID,
		MintA:          *mintA,
		MintB:          *mintB,
		InputAmount:    amt,
		SlippageBps:    *slippage,
		BaseIn:         *baseIn,
		AutoSelectBest: *best,
		SortBy:         cpmm.PoolSortField(*sortBy),
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func runRemoveLiquidity(ctx context.Context, engine *cpmm.Engine, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("remove-liquidity", flag.ExitOnError)
	poolID := fs.String("pool", "", "pool id")
	lpAmount := fs.String("lp-amount", "", "LP amount to burn, human units; empty burns the full balance")
	slippage := fs.Uint64("slippage", uint64(cfg.SlippageBps), "slippage tolerance, bps")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := cpmm.RemoveLiquidityParams{PoolID: *poolID, SlippageBps: *slippage}
	if *lpAmount != "" {
		amt, err := parseAmount(*lpAmount, "lp-amount")
		if err != nil {
			return err
		}
		params.LpAmount = amt
	}
	result, err := engine.RemoveLiquidity(ctx, params)
	if err != nil {
		return err
	}
	return printResult(result)
}

func runSwapIn(ctx context.Context, engine *cpmm.Engine, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("swap-in", flag.ExitOnError)
	poolID := fs.String("pool", "", "pool id")
	inputMint := fs.String("input-mint", "", "mint being sold")
	amount := fs.String("amount", "", "exact input amount, human units")
	slippage := fs.Uint64("slippage", uint64(cfg.SlippageBps), "slippage tolerance, bps")
	if err := fs.Parse(args); err != nil {
		return err
	}

	amt, err := parseAmount(*amount, "amount")
	if err != nil {
		return err
	}
	result, err := engine.SwapExactIn(ctx, cpmm.SwapExactInParams{
		PoolID:      *poolID,
		InputMint:   *inputMint,
		Amount:      amt,
		SlippageBps: *slippage,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func runSwapOut(ctx context.Context, engine *cpmm.Engine, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("swap-out", flag.ExitOnError)
	poolID := fs.String("pool", "", "pool id")
	outputMint := fs.String("output-mint", "", "mint being bought")
	amount := fs.String("amount", "", "exact output amount, human units")
	slippage := fs.Uint64("slippage", uint64(cfg.SlippageBps), "slippage tolerance, bps")
	if err := fs.Parse(args); err != nil {
		return err
	}

	amt, err := parseAmount(*amount, "amount")
	if err != nil {
		return err
	}
	result, err := engine.SwapExactOut(ctx, cpmm.SwapExactOutParams{
		PoolID:      *poolID,
		OutputMint:  *outputMint,
		Amount:      amt,
		SlippageBps: *slippage,
	})
	if err != nil {
		return err
	}
	return printResult(result)
}

func runLock(ctx context.Context, engine *cpmm.Engine, args []string) error {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	poolID := fs.String("pool", "", "pool id")
	lpAmount := fs.String("lp-amount", "", "LP amount to lock, human units; empty locks the full balance")
	withMetadata := fs.Bool("metadata", true, "attach metadata to the position NFT")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := cpmm.LockLiquidityParams{PoolID: *poolID, WithMetadata: *withMetadata}
	if *lpAmount != "" {
		amt, err := parseAmount(*lpAmount, "lp-amount")
		if err != nil {
			return err
		}
		params.LpAmount = amt
	}
	result, err := engine.LockLiquidity(ctx, params)
	if err != nil {
		return err
	}
	return printResult(result)
}

func runHarvest(ctx context.Context, engine *cpmm.Engine, args []string) error {
	fs := flag.NewFlagSet("harvest", flag.ExitOnError)
	poolID := fs.String("pool", "", "pool id")
	feeNft := fs.String("nft", "", "fee NFT mint identifying the locked position")
	feeAmount := fs.String("fee-amount", "", "LP fee amount to claim; empty claims everything accrued")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := cpmm.HarvestLockParams{PoolID: *poolID, FeeNftMint: *feeNft}
	if *feeAmount != "" {
		amt, err := parseAmount(*feeAmount, "fee-amount")
		if err != nil {
			return err
		}
		params.LpFeeAmount = amt
	}
	result, err := engine.HarvestLock(ctx, params)
	if err != nil {
		return err
	}
	return printResult(result)
}

// batchSwapEntry is one line of work in a batch-swap file.
type batchSwapEntry struct {
	PoolID      string `json:"pool_id"`
	InputMint   string `json:"input_mint"`
	Amount      string `json:"amount"`
	SlippageBps uint64 `json:"slippage_bps"`
}

func runBatchSwap(ctx context.Context, engine *cpmm.Engine, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("batch-swap", flag.ExitOnError)
	file := fs.String("file", "", "JSON file with an array of swaps")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("missing required flag -file")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}
	var entries []batchSwapEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse batch file: %w", err)
	}

	tasks := make([]batch.Task, 0, len(entries))
	for i, entry := range entries {
		amt, err := parseAmount(entry.Amount, fmt.Sprintf("amount (entry %d)", i))
		if err != nil {
			return err
		}
		slippage := entry.SlippageBps
		if slippage == 0 {
			slippage = uint64(cfg.SlippageBps)
		}
		params := cpmm.SwapExactInParams{
			PoolID:      entry.PoolID,
			InputMint:   entry.InputMint,
			Amount:      amt,
			SlippageBps: slippage,
		}
		tasks = append(tasks, batch.Task{
			Name: fmt.Sprintf("swap %s -> pool %s", entry.InputMint, entry.PoolID),
			Run: func(ctx context.Context) error {
				result, err := engine.SwapExactIn(ctx, params)
				if err != nil {
					return err
				}
				return printResult(result)
			},
		})
	}

	runner := batch.NewRunner(batch.Options{
		Concurrency: cfg.Batch.Concurrency,
		Delay:       time.Duration(cfg.Batch.DelayMs) * time.Millisecond,
	}, log.Logger)
	result, err := runner.Run(ctx, tasks)
	if err != nil {
		return err
	}

	log.Info("Batch swap finished",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)))
	for _, f := range result.Failed {
		log.Warn("Swap failed", zap.String("task", f.String()))
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d swaps failed", len(result.Failed), len(tasks))
	}
	return nil
}
