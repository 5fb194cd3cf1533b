package accountClient

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeExecute(t *testing.T) {
	target := common.HexToAddress("0xAAAA000000000000000000000000000000000001")
	data, err := EncodeExecute(Call{Target: target})
	require.NoError(t, err)

	assert.Equal(t, "0xb61d27f6", hexutil.Encode(data[:4]))
	assert.Equal(t, common.LeftPadBytes(target.Bytes(), 32), data[4:36])
	assert.Equal(t, make([]byte, 32), data[36:68], "missing value encodes as zero")
}

func TestEncodeExecuteBatch_PreservesOrder(t *testing.T) {
	calls := []Call{
		{Target: common.HexToAddress("0xA"), Value: big.NewInt(1), Data: []byte{0x01}},
		{Target: common.HexToAddress("0xB")},
		{Target: common.HexToAddress("0xC"), Value: big.NewInt(3), Data: []byte{0x03, 0x04}},
	}
	data, err := EncodeExecuteBatch(calls)
	require.NoError(t, err)
	assert.Equal(t, "0x34fcd5be", hexutil.Encode(data[:4]))

	decoded, err := DecodeExecuteBatch(data)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	for i := range calls {
		assert.Equal(t, calls[i].Target, decoded[i].Target)
		assert.Equal(t, valueOrZero(calls[i].Value).String(), decoded[i].Value.String())
		assert.Equal(t, dataOrEmpty(calls[i].Data), decoded[i].Data)
	}
}

func TestDecodeExecuteBatch_RejectsExecute(t *testing.T) {
	data, err := EncodeExecute(Call{Target: common.HexToAddress("0xA")})
	require.NoError(t, err)
	_, err = DecodeExecuteBatch(data)
	assert.ErrorContains(t, err, "not executeBatch")

	_, err = DecodeExecuteBatch([]byte{0x01})
	assert.Error(t, err)
}

func TestGetNonceEncoding(t *testing.T) {
	sender := common.HexToAddress("0xA")
	data, err := encodeGetNonce(sender)
	require.NoError(t, err)
	assert.Equal(t, "0x35567e1a", hexutil.Encode(data[:4]))

	out, err := entryPointABI.Methods["getNonce"].Outputs.Pack(big.NewInt(42))
	require.NoError(t, err)
	nonce, err := decodeGetNonce(out)
	require.NoError(t, err)
	assert.Equal(t, int64(42), nonce.Int64())
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{
		ChainID:               8453,
		ImplementationAddress: common.HexToAddress("0x69007702764179f14F51cdce752f4f775d74E139"),
		BundlerURL:            "https://bundler.example.com/rpc",
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultEntryPoint, cfg.EntryPoint)
	assert.Equal(t, ModeEIP7702, cfg.Mode)
	assert.Equal(t, cfg.BundlerURL, cfg.PaymasterURL)

	bad := *cfg
	bad.Mode = "4337"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.BundlerURL = "not a url"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.ImplementationAddress = common.Address{}
	assert.Error(t, bad.Validate())

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}
