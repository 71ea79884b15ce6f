// internal/cluster/cluster.go
package cluster

import (
	"fmt"
	"strings"
)

// Cluster identifies a supported network cluster. The set is closed: every
// branch on a Cluster value switches exhaustively so an unsupported value
// surfaces as an error instead of silently behaving like mainnet.
type Cluster uint8

const (
	Mainnet Cluster = iota
	Devnet
)

const explorerBaseURL = "https://explorer.solana.com"

// Parse converts a config tag into a Cluster.
func Parse(s string) (Cluster, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "mainnet-beta":
		return Mainnet, nil
	case "devnet":
		return Devnet, nil
	default:
		return Mainnet, fmt.Errorf("unsupported cluster %q", s)
	}
}

func (c Cluster) String() string {
	switch c {
	case Mainnet:
		return "mainnet"
	case Devnet:
		return "devnet"
	default:
		return fmt.Sprintf("cluster(%d)", uint8(c))
	}
}

// HasIndexAPI reports whether an off-chain pool index is available for the
// cluster. Pool and fee-config lookups fall back to direct account reads
// everywhere else.
func (c Cluster) HasIndexAPI() bool {
	switch c {
	case Mainnet:
		return true
	case Devnet:
		return false
	default:
		return false
	}
}

// ExplorerTxURL returns the explorer link for a transaction signature. The
// cluster query suffix is appended on every non-primary network.
func (c Cluster) ExplorerTxURL(txID string) string {
	url := fmt.Sprintf("%s/tx/%s", explorerBaseURL, txID)
	if c != Mainnet {
		url += "?cluster=" + c.String()
	}
	return url
}
