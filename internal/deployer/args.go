package deployer

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// PackConstructorArgs ABI-encodes args against the constructor in abiJSON.
// A contract without a constructor accepts no arguments.
func PackConstructorArgs(abiJSON []byte, args ...any) ([]byte, error) {
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	if len(parsed.Constructor.Inputs) == 0 {
		if len(args) > 0 {
			return nil, fmt.Errorf("contract has no constructor but %d arguments were given", len(args))
		}
		return nil, nil
	}
	packed, err := parsed.Constructor.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("pack constructor arguments: %w", err)
	}
	return packed, nil
}

// EncodeJSONArgs converts a JSON array of constructor arguments (the format
// of an xdeploy constructorArgsPath file) into ABI-encoded bytes. Integers may
// be JSON numbers or decimal/hex strings; bytes are hex strings; tuples may be
// arrays or objects keyed by component name.
func EncodeJSONArgs(abiJSON []byte, rawArgs []byte) ([]byte, error) {
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	var items []json.RawMessage
	if len(bytes.TrimSpace(rawArgs)) > 0 {
		if err := json.Unmarshal(rawArgs, &items); err != nil {
			return nil, fmt.Errorf("constructor arguments must be a JSON array: %w", err)
		}
	}

	inputs := parsed.Constructor.Inputs
	if len(items) != len(inputs) {
		return nil, fmt.Errorf("constructor expects %d arguments, got %d", len(inputs), len(items))
	}

	values := make([]any, len(inputs))
	for i, in := range inputs {
		v, err := convertArg(in.Type, items[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s %s): %w", i, in.Type.String(), in.Name, err)
		}
		values[i] = v.Interface()
	}
	return PackConstructorArgs(abiJSON, values...)
}

func convertArg(t abi.Type, raw json.RawMessage) (reflect.Value, error) {
	switch t.T {
	case abi.IntTy, abi.UintTy:
		n, err := parseBigInt(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		if !fitsABIInt(t, n) {
			return reflect.Value{}, fmt.Errorf("value %s out of range", n)
		}
		goType := t.GetType()
		if goType.Kind() == reflect.Ptr {
			return reflect.ValueOf(n), nil
		}
		v := reflect.New(goType).Elem()
		if t.T == abi.UintTy {
			if n.Sign() < 0 || !n.IsUint64() || v.OverflowUint(n.Uint64()) {
				return reflect.Value{}, fmt.Errorf("value %s out of range", n)
			}
			v.SetUint(n.Uint64())
		} else {
			if !n.IsInt64() || v.OverflowInt(n.Int64()) {
				return reflect.Value{}, fmt.Errorf("value %s out of range", n)
			}
			v.SetInt(n.Int64())
		}
		return v, nil

	case abi.BoolTy:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil

	case abi.StringTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s), nil

	case abi.AddressTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return reflect.Value{}, err
		}
		if !common.IsHexAddress(s) {
			return reflect.Value{}, fmt.Errorf("invalid address %q", s)
		}
		return reflect.ValueOf(common.HexToAddress(s)), nil

	case abi.BytesTy:
		b, err := parseHexBytes(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil

	case abi.FixedBytesTy:
		b, err := parseHexBytes(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		if len(b) != t.Size {
			return reflect.Value{}, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		v := reflect.New(t.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(b))
		return v, nil

	case abi.SliceTy, abi.ArrayTy:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return reflect.Value{}, err
		}
		var v reflect.Value
		if t.T == abi.SliceTy {
			v = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			if len(items) != t.Size {
				return reflect.Value{}, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
			}
			v = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			elem, err := convertArg(*t.Elem, item)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			v.Index(i).Set(elem)
		}
		return v, nil

	case abi.TupleTy:
		items, err := tupleItems(t, raw)
		if err != nil {
			return reflect.Value{}, err
		}
		v := reflect.New(t.GetType()).Elem()
		for i, elemType := range t.TupleElems {
			elem, err := convertArg(*elemType, items[i])
			if err != nil {
				return reflect.Value{}, fmt.Errorf("component %s: %w", t.TupleRawNames[i], err)
			}
			v.Field(i).Set(elem)
		}
		return v, nil

	default:
		return reflect.Value{}, fmt.Errorf("unsupported type %s", t.String())
	}
}

// fitsABIInt reports whether n is representable in the intN/uintN type t
func fitsABIInt(t abi.Type, n *big.Int) bool {
	if t.T == abi.UintTy {
		return n.Sign() >= 0 && n.BitLen() <= t.Size
	}
	if n.Sign() >= 0 {
		return n.BitLen() <= t.Size-1
	}
	// -2^(size-1) <= n  <=>  -n-1 < 2^(size-1)
	m := new(big.Int).Neg(n)
	m.Sub(m, big.NewInt(1))
	return m.BitLen() <= t.Size-1
}

func tupleItems(t abi.Type, raw json.RawMessage) ([]json.RawMessage, error) {
	var positional []json.RawMessage
	if err := json.Unmarshal(raw, &positional); err == nil {
		if len(positional) != len(t.TupleElems) {
			return nil, fmt.Errorf("expected %d components, got %d", len(t.TupleElems), len(positional))
		}
		return positional, nil
	}

	var named map[string]json.RawMessage
	if err := json.Unmarshal(raw, &named); err != nil {
		return nil, fmt.Errorf("tuple must be an array or object")
	}
	items := make([]json.RawMessage, len(t.TupleElems))
	for i, name := range t.TupleRawNames {
		item, ok := named[name]
		if !ok {
			return nil, fmt.Errorf("missing component %q", name)
		}
		items[i] = item
	}
	return items, nil
}

func parseBigInt(raw json.RawMessage) (*big.Int, error) {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
	}
	n, ok := math.ParseBig256(s)
	if !ok {
		// ParseBig256 rejects negatives
		if strings.HasPrefix(s, "-") {
			if m, ok := math.ParseBig256(s[1:]); ok {
				return m.Neg(m), nil
			}
		}
		return nil, fmt.Errorf("invalid integer %s", s)
	}
	return n, nil
}

func parseHexBytes(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

// DecodeHex decodes a 0x-prefixed or bare hex string; empty input yields nil
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
