package clients

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// WRLDTokenABI covers the parts of the WRLD token the engine touches: the
// standard Transfer event, the TransferRef event carrying a payment reference,
// and balanceOf.
const WRLDTokenABI = `[
  {
    "anonymous": false,
    "type": "event",
    "name": "Transfer",
    "inputs": [
      { "indexed": true,  "name": "from",  "type": "address" },
      { "indexed": true,  "name": "to",    "type": "address" },
      { "indexed": false, "name": "value", "type": "uint256" }
    ]
  },
  {
    "anonymous": false,
    "type": "event",
    "name": "TransferRef",
    "inputs": [
      { "indexed": true,  "name": "sender",    "type": "address" },
      { "indexed": true,  "name": "recipient", "type": "address" },
      { "indexed": false, "name": "amount",    "type": "uint256" },
      { "indexed": false, "name": "ref",       "type": "uint256" }
    ]
  },
  {
    "constant": true,
    "type": "function",
    "name": "balanceOf",
    "stateMutability": "view",
    "inputs": [{ "name": "account", "type": "address" }],
    "outputs": [{ "name": "", "type": "uint256" }]
  }
]`

const (
	EventTransfer    = "Transfer"
	EventTransferRef = "TransferRef"
	MethodBalanceOf  = "balanceOf"
)

var (
	tokenABIOnce sync.Once
	tokenABI     abi.ABI
)

// TokenABI returns the parsed WRLD token ABI.
func TokenABI() abi.ABI {
	tokenABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(WRLDTokenABI))
		if err != nil {
			panic("clients: invalid WRLD token ABI: " + err.Error())
		}
		tokenABI = parsed
	})
	return tokenABI
}
