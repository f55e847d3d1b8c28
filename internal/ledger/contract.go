package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// voteContractABI describes the subset of the voting contract this package
// calls
const voteContractABI = `[
	{
		"type": "function",
		"name": "issueToken",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "tokenHash", "type": "bytes32"},
			{"name": "wallet", "type": "address"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "castVote",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "ballotId", "type": "uint256"},
			{"name": "tokenHash", "type": "bytes32"},
			{"name": "voteHash", "type": "bytes32"},
			{"name": "receipt", "type": "bytes32"}
		],
		"outputs": []
	},
	{
		"type": "event",
		"name": "VoteCast",
		"anonymous": false,
		"inputs": [
			{"name": "ballotId", "type": "uint256", "indexed": true},
			{"name": "tokenHash", "type": "bytes32", "indexed": true},
			{"name": "voteHash", "type": "bytes32", "indexed": false},
			{"name": "receipt", "type": "bytes32", "indexed": false},
			{"name": "wallet", "type": "address", "indexed": true},
			{"name": "sbtTokenId", "type": "uint256", "indexed": false}
		]
	}
]`

const voteCastEvent = "VoteCast"

func parseVoteContractABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(voteContractABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse vote contract ABI: %w", err)
	}
	return parsed, nil
}
