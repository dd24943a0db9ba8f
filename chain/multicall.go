package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Call one entry of a batched read
type Call struct {
	// Target contract to call
	Target common.Address
	// CallData ABI encoded call data
	CallData []byte
}

// CallResult tagged outcome of one entry of a batched read
type CallResult struct {
	// Ok whether the entry call succeeded
	Ok bool
	// ReturnData ABI encoded return data, empty when Ok is false
	ReturnData []byte
}

// mcResult mirrors the Multicall3 result tuple for ABI conversion
type mcResult struct {
	Success    bool
	ReturnData []byte
}

// Multicall batches independent reads into a single RPC round trip
type Multicall struct {
	goutils.Component

	address  common.Address
	contract *bind.BoundContract
}

/*
NewMulticall define a new multicall batcher

	@param address common.Address - deployed Multicall3 contract address
	@param caller bind.ContractCaller - read-only chain backend
	@returns batcher instance
*/
func NewMulticall(address common.Address, caller bind.ContractCaller) (*Multicall, error) {
	logTags := log.Fields{"module": "chain", "component": "multicall"}

	parsed, err := abi.JSON(strings.NewReader(multicallABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse multicall ABI [%w]", err)
	}

	return &Multicall{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		address:  address,
		contract: bind.NewBoundContract(address, parsed, caller, nil, nil),
	}, nil
}

/*
TryAggregate run a batch of reads in one round trip

With requireSuccess the whole batch fails on any reverting entry; without it
each entry reports its own tagged result and a reverting entry never aborts
its siblings.

	@param ctx context.Context - execution context
	@param requireSuccess bool - whether a reverting entry fails the whole batch
	@param calls []Call - the batched calls
	@return per-entry tagged results, in call order
*/
func (m *Multicall) TryAggregate(
	ctx context.Context, requireSuccess bool, calls []Call,
) ([]CallResult, error) {
	if len(calls) == 0 {
		return []CallResult{}, nil
	}

	var out []interface{}
	if err := m.contract.Call(
		&bind.CallOpts{Context: ctx}, &out, "tryAggregate", requireSuccess, calls,
	); err != nil {
		return nil, fmt.Errorf("multicall of %d reads failed [%w]", len(calls), err)
	}

	raw := *abi.ConvertType(out[0], new([]mcResult)).(*[]mcResult)
	if len(raw) != len(calls) {
		return nil, fmt.Errorf(
			"multicall returned %d results for %d calls", len(raw), len(calls),
		)
	}

	results := make([]CallResult, 0, len(raw))
	for _, entry := range raw {
		results = append(results, CallResult{Ok: entry.Success, ReturnData: entry.ReturnData})
	}
	return results, nil
}
