package solbc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

// AnchorError represents a program error surfaced through simulation logs.
type AnchorError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// knownPoolErrors maps AMM program error names to actionable hints.
var knownPoolErrors = map[string]string{
	"NotApproved":         "pool is not open for this operation yet",
	"InvalidOwner":        "account owner does not match the pool program",
	"EmptySupply":         "input token account holds no balance",
	"InvalidInput":        "instruction arguments rejected by the program",
	"ExceededSlippage":    "price moved beyond the allowed slippage, retry with a wider bound",
	"ZeroTradingTokens":   "amount too small, results in zero trading tokens",
	"NotSupportMint":      "token-2022 mint extension is not supported by the pool",
	"InvalidVault":        "vault account does not belong to the pool",
	"InitLpAmountTooLess": "initial deposit too small, part of the LP supply is permanently locked",
}

// Hint returns a short remediation note for known program errors.
func (a *AnchorError) Hint() string {
	if a == nil {
		return ""
	}
	return knownPoolErrors[a.Name]
}

// TxErrorAnalysis is the decoded view of a failed submission.
type TxErrorAnalysis struct {
	Type             string       `json:"type"`
	Code             int          `json:"code,omitempty"`
	Message          string       `json:"message"`
	SimulationFailed bool         `json:"simulation_failed,omitempty"`
	Logs             []string     `json:"logs,omitempty"`
	Anchor           *AnchorError `json:"anchor_error,omitempty"`
	InstructionError interface{}  `json:"instruction_error,omitempty"`
}

// ErrorAnalyzer decodes RPC submission failures into program-level causes.
type ErrorAnalyzer struct {
	logger *zap.Logger
}

func NewErrorAnalyzer(logger *zap.Logger) *ErrorAnalyzer {
	return &ErrorAnalyzer{
		logger: logger.Named("error-analyzer"),
	}
}

// Analyze inspects a submission error. RPC errors carrying simulation logs
// are unpacked down to the originating program error when one is present.
func (ea *ErrorAnalyzer) Analyze(err error) *TxErrorAnalysis {
	if err == nil {
		return nil
	}

	rpcErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return &TxErrorAnalysis{Type: "generic_error", Message: err.Error()}
	}

	analysis := &TxErrorAnalysis{
		Type:    "rpc_error",
		Code:    rpcErr.Code,
		Message: rpcErr.Message,
	}

	if !strings.Contains(rpcErr.Message, "Transaction simulation failed") {
		return analysis
	}
	analysis.SimulationFailed = true

	dataMap, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return analysis
	}

	if logs, ok := dataMap["logs"].([]interface{}); ok {
		for _, entry := range logs {
			logStr, ok := entry.(string)
			if !ok {
				continue
			}
			analysis.Logs = append(analysis.Logs, logStr)
			if strings.Contains(logStr, "AnchorError occurred") {
				anchorErr := parseAnchorErrorLog(logStr)
				analysis.Anchor = &anchorErr

				ea.logger.Warn("Program error detected",
					zap.Int("code", anchorErr.Code),
					zap.String("name", anchorErr.Name),
					zap.String("message", anchorErr.Msg),
					zap.String("hint", anchorErr.Hint()))
			}
		}
	}

	if instErr, ok := dataMap["err"]; ok {
		analysis.InstructionError = instErr
	}
	return analysis
}

// parseAnchorErrorLog extracts the structured parts of an Anchor error line.
// Example: "Program log: AnchorError occurred. Error Code: ExceededSlippage.
// Error Number: 6004. Error Message: Exceeds desired slippage limit."
func parseAnchorErrorLog(logStr string) AnchorError {
	result := AnchorError{}

	if parts := strings.SplitN(logStr, "Error Number:", 2); len(parts) == 2 {
		numPart := strings.SplitN(parts[1], ".", 2)[0]
		fmt.Sscanf(strings.TrimSpace(numPart), "%d", &result.Code)
	}
	if parts := strings.SplitN(logStr, "Error Code:", 2); len(parts) == 2 {
		result.Name = strings.TrimSpace(strings.SplitN(parts[1], ".", 2)[0])
	}
	if parts := strings.SplitN(logStr, "Error Message:", 2); len(parts) == 2 {
		result.Msg = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(parts[1]), "."))
	}
	return result
}

// String renders the analysis for logs or UI surfaces.
func (t *TxErrorAnalysis) String() string {
	jsonBytes, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Sprintf("error formatting analysis: %v", err)
	}
	return string(jsonBytes)
}
