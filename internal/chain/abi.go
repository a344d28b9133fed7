package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// marketABIJSON is the subset of the alpha market contract interface this
// service calls.
const marketABIJSON = `[
 {"type":"function","name":"getAlpha","stateMutability":"view",
  "inputs":[{"name":"alphaId","type":"uint256"}],
  "outputs":[{"name":"","type":"tuple","components":[
   {"name":"asset","type":"address"},{"name":"ticker","type":"string"},
   {"name":"tokenURI","type":"string"},{"name":"creator","type":"address"},
   {"name":"stake","type":"uint256"},{"name":"totalOpponentsStaked","type":"uint256"},
   {"name":"totalStaked","type":"uint256"},{"name":"targetPrice","type":"uint256"},
   {"name":"expiry","type":"uint256"},{"name":"settled","type":"bool"},
   {"name":"creatorWon","type":"bool"},{"name":"opponentCount","type":"uint256"}]}]},
 {"type":"function","name":"getAlphas","stateMutability":"view",
  "inputs":[{"name":"start","type":"uint256"},{"name":"count","type":"uint256"}],
  "outputs":[{"name":"","type":"tuple[]","components":[
   {"name":"asset","type":"address"},{"name":"ticker","type":"string"},
   {"name":"tokenURI","type":"string"},{"name":"creator","type":"address"},
   {"name":"stake","type":"uint256"},{"name":"totalOpponentsStaked","type":"uint256"},
   {"name":"totalStaked","type":"uint256"},{"name":"targetPrice","type":"uint256"},
   {"name":"expiry","type":"uint256"},{"name":"settled","type":"bool"},
   {"name":"creatorWon","type":"bool"},{"name":"opponentCount","type":"uint256"}]}]},
 {"type":"function","name":"nextAlphaId","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getLiveStats","stateMutability":"view",
  "inputs":[{"name":"alphaId","type":"uint256"}],
  "outputs":[{"name":"creatorStake","type":"uint256"},{"name":"totalOpponents","type":"uint256"},
   {"name":"totalStaked","type":"uint256"},{"name":"opponentCount","type":"uint256"}]},
 {"type":"function","name":"getOpponents","stateMutability":"view",
  "inputs":[{"name":"alphaId","type":"uint256"}],
  "outputs":[{"name":"","type":"tuple[]","components":[
   {"name":"addr","type":"address"},{"name":"amount","type":"uint256"},{"name":"fid","type":"uint256"}]}]},
 {"type":"function","name":"getUserStakeInAlpha","stateMutability":"view",
  "inputs":[{"name":"alphaId","type":"uint256"},{"name":"user","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getWithdrawableAmount","stateMutability":"view",
  "inputs":[{"name":"user","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"isAlphaResolved","stateMutability":"view",
  "inputs":[{"name":"alphaId","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"priceRequested","stateMutability":"view",
  "inputs":[{"name":"alphaId","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"userBets","stateMutability":"view",
  "inputs":[{"name":"user","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"stakeToken","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"stakeTokenDecimals","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"uint8"}]},
 {"type":"function","name":"createAlphaERC20","stateMutability":"nonpayable",
  "inputs":[{"name":"asset","type":"address"},{"name":"ticker","type":"string"},
   {"name":"targetPrice","type":"uint256"},{"name":"expiry","type":"uint256"},
   {"name":"stakeAmount","type":"uint256"},{"name":"tokenURI","type":"string"}],
  "outputs":[]},
 {"type":"function","name":"betAgainstERC20","stateMutability":"nonpayable",
  "inputs":[{"name":"alphaId","type":"uint256"},{"name":"bettorFid","type":"uint256"}],
  "outputs":[]},
 {"type":"function","name":"requestAlphaSettlement","stateMutability":"nonpayable",
  "inputs":[{"name":"alphaId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"finalizeAlphaSettlement","stateMutability":"nonpayable",
  "inputs":[{"name":"alphaId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"withdrawToken","stateMutability":"nonpayable",
  "inputs":[],"outputs":[]}
]`

const erc20ABIJSON = `[
 {"type":"function","name":"balanceOf","stateMutability":"view",
  "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"allowance","stateMutability":"view",
  "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"decimals","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"uint8"}]},
 {"type":"function","name":"symbol","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"string"}]},
 {"type":"function","name":"name","stateMutability":"view","inputs":[],
  "outputs":[{"name":"","type":"string"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable",
  "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]}
]`

var (
	// MarketABI is the parsed alpha market interface.
	MarketABI = mustParse(marketABIJSON)
	// ERC20ABI is the parsed ERC-20 interface.
	ERC20ABI = mustParse(erc20ABIJSON)
)

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("chain: parse abi: " + err.Error())
	}
	return parsed
}
