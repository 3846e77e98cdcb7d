package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// musicNFTABI is the subset of the MusicNFT contract the client calls.
const musicNFTABI = `[
	{"type":"function","name":"mintMusicNFT","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"tokenURI","type":"string"},
		{"name":"amount","type":"uint256"},
		{"name":"price","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"buyMusic","stateMutability":"payable","inputs":[
		{"name":"tokenId","type":"uint256"}
	],"outputs":[]},
	{"type":"event","name":"TransferSingle","anonymous":false,"inputs":[
		{"name":"operator","type":"address","indexed":true},
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"id","type":"uint256","indexed":false},
		{"name":"value","type":"uint256","indexed":false}
	]}
]`

const (
	mintMethod     = "mintMusicNFT"
	buyMethod      = "buyMusic"
	transferSingle = "TransferSingle"
)

var contractABI = mustParseABI(musicNFTABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parse contract abi: %v", err))
	}
	return parsed
}

// TransferSingleTopic is the topic hash of the contract's TransferSingle event.
func TransferSingleTopic() common.Hash {
	return contractABI.Events[transferSingle].ID
}

// ParseAddress validates a 20-byte hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
