package flash

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// The opaque callback payload is the fixed-layout ABI encoding of
// (address debtToken, address borrower, uint256 minProfit). The initiating
// wrapper encodes it; the callback decodes it.
var payloadArguments = abi.Arguments{
	{Name: "debtToken", Type: mustABIType("address")},
	{Name: "borrower", Type: mustABIType("address")},
	{Name: "minProfit", Type: mustABIType("uint256")},
}

func mustABIType(name string) abi.Type {
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("flash: abi type %q: %v", name, err))
	}
	return typ
}

// EncodeLoanPayload packs the request parameters a loan initiation must tag
// the borrow with. A nil minProfit encodes as zero.
func EncodeLoanPayload(debtToken, borrower common.Address, minProfit *big.Int) ([]byte, error) {
	if minProfit == nil {
		minProfit = big.NewInt(0)
	}
	if minProfit.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative minProfit", ErrMalformedPayload)
	}
	data, err := payloadArguments.Pack(debtToken, borrower, minProfit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return data, nil
}

func decodeLoanPayload(data []byte) (common.Address, common.Address, *big.Int, error) {
	values, err := payloadArguments.Unpack(data)
	if err != nil {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(values) != 3 {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedPayload, len(values))
	}
	debtToken, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: debtToken is not an address", ErrMalformedPayload)
	}
	borrower, ok := values[1].(common.Address)
	if !ok {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: borrower is not an address", ErrMalformedPayload)
	}
	minProfit, ok := values[2].(*big.Int)
	if !ok || minProfit == nil {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("%w: minProfit is not an integer", ErrMalformedPayload)
	}
	return debtToken, borrower, minProfit, nil
}
