package polymarket

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

const (
	polygonChainID = int64(137)

	// zero taker = public order
	zeroAddress = "0x0000000000000000000000000000000000000000"
)

// account is the signing scheme of the trading account, fixed at construction.
type account interface {
	// maker is the address that holds the funds.
	maker(wallet common.Address) common.Address
	sigType() domain.SignatureType
}

// eoaAccount trades directly from the wallet.
type eoaAccount struct{}

func (eoaAccount) maker(wallet common.Address) common.Address { return wallet }
func (eoaAccount) sigType() domain.SignatureType { return domain.SignatureEOA }

// proxyAccount trades from a Polymarket proxy or a Gnosis Safe owned by the wallet.
type proxyAccount struct {
	funder common.Address
	kind   domain.SignatureType
}

func (a proxyAccount) maker(common.Address) common.Address { return a.funder }
func (a proxyAccount) sigType() domain.SignatureType { return a.kind }

// Signer builds and signs EIP-712 CTF exchange orders for one account.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	wallet     common.Address
	account    account
	builder    builder.ExchangeOrderBuilder
}

var _ ports.OrderSigner = (*Signer)(nil)

// NewSigner parses the wallet key and selects the account variant.
// funder is required for POLY_PROXY and GNOSIS_SAFE and ignored for EOA.
func NewSigner(privateKeyHex string, sigType domain.SignatureType, funder string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer: invalid private key: %v: %w", err, domain.ErrSigningFailure)
	}

	var acct account
	switch sigType {
	case domain.SignatureEOA:
		acct = eoaAccount{}
	case domain.SignaturePolyProxy, domain.SignatureGnosisSafe:
		if !common.IsHexAddress(funder) {
			return nil, fmt.Errorf("signer: %s requires a funder address, got %q: %w", sigType, funder, domain.ErrSigningFailure)
		}
		acct = proxyAccount{funder: common.HexToAddress(funder), kind: sigType}
	default:
		return nil, fmt.Errorf("signer: unsupported signature type %d: %w", int(sigType), domain.ErrSigningFailure)
	}

	return &Signer{
		privateKey: key,
		wallet:     crypto.PubkeyToAddress(key.PublicKey),
		account:    acct,
		builder:    builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
	}, nil
}

// Address returns the signing wallet address.
func (s *Signer) Address() string {
	return s.wallet.Hex()
}

// Funder returns the address that holds the funds (the wallet for EOA).
func (s *Signer) Funder() string {
	return s.account.maker(s.wallet).Hex()
}

// Account identifies the trading account for lock keys.
func (s *Signer) Account() string {
	return strings.ToLower(s.Funder())
}

func (s *Signer) SignatureType() domain.SignatureType {
	return s.account.sigType()
}

// Sign builds the venue order for o and signs it. The exchange contract follows o.NegRisk.
func (s *Signer) Sign(o domain.Order) (domain.SignedOrder, error) {
	if o.SignatureType != s.account.sigType() {
		return domain.SignedOrder{}, fmt.Errorf("signer: order stamped %s, account is %s: %w",
			o.SignatureType, s.account.sigType(), domain.ErrSigningFailure)
	}

	makerAmt, takerAmt, err := orderAmounts(o.Action, o.PriceUSD, o.SizeUSD)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("signer: %w", err)
	}

	side := gomodel.BUY
	if o.Action == domain.ActionSell {
		side = gomodel.SELL
	}
	contract := gomodel.CTFExchange
	if o.NegRisk {
		contract = gomodel.NegRiskCTFExchange
	}

	data := &gomodel.OrderData{
		Maker:         s.account.maker(s.wallet).Hex(),
		Taker:         zeroAddress,
		TokenId:       o.TokenID,
		MakerAmount:   strconv.FormatInt(makerAmt, 10),
		TakerAmount:   strconv.FormatInt(takerAmt, 10),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        s.wallet.Hex(),
		Expiration:    "0",
		Side:          side,
		SignatureType: gomodel.SignatureType(s.account.sigType()),
	}

	signed, err := s.builder.BuildSignedOrder(s.privateKey, data, contract)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("signer: build signed order: %v: %w", err, domain.ErrSigningFailure)
	}

	return domain.SignedOrder{
		Salt:          signed.Order.Salt.String(),
		Maker:         signed.Order.Maker.Hex(),
		Signer:        signed.Order.Signer.Hex(),
		Taker:         signed.Order.Taker.Hex(),
		TokenID:       o.TokenID,
		MakerAmount:   signed.Order.MakerAmount.String(),
		TakerAmount:   signed.Order.TakerAmount.String(),
		Expiration:    signed.Order.Expiration.String(),
		Nonce:         signed.Order.Nonce.String(),
		FeeRateBps:    signed.Order.FeeRateBps.String(),
		Side:          o.Action,
		SignatureType: s.account.sigType(),
		Signature:     "0x" + hex.EncodeToString(signed.Signature),
	}, nil
}

// orderAmounts converts a USD notional at price into integer maker/taker amounts
// (6 decimals). The CLOB checks makerAmount == price * takerAmount exactly, so the
// math stays in integers. BUY gives USDC for shares; SELL gives shares for USDC.
func orderAmounts(action domain.OrderAction, price, sizeUSD float64) (maker, taker int64, err error) {
	if price <= 0 || price >= 1 || sizeUSD <= 0 {
		return 0, 0, fmt.Errorf("price %.4f size %.4f: %w", price, sizeUSD, domain.ErrValidation)
	}

	precision := detectPricePrecision(price)
	priceInt := int64(math.Round(price * float64(precision)))
	sharesCents := int64(math.Floor(sizeUSD / price * 100))

	amountFactor := int64(1_000_000) / (100 * precision)
	usdcMicro := sharesCents * priceInt * amountFactor
	sharesMicro := sharesCents * 10_000

	if usdcMicro <= 0 || sharesMicro <= 0 {
		return 0, 0, fmt.Errorf("invalid amounts usdc=%d shares=%d: %w", usdcMicro, sharesMicro, domain.ErrValidation)
	}
	if action == domain.ActionSell {
		return sharesMicro, usdcMicro, nil
	}
	return usdcMicro, sharesMicro, nil
}

// detectPricePrecision returns the multiplier matching the market tick size.
// 0.60 → 100 (tick 0.01), 0.673 → 1000 (tick 0.001).
func detectPricePrecision(price float64) int64 {
	for _, prec := range []int64{100, 1000, 10000} {
		rounded := math.Round(price * float64(prec))
		if math.Abs(rounded/float64(prec)-price) < 1e-10 {
			return prec
		}
	}
	return 100
}

// EIP-712 ClobAuth type hashes used for L1 authentication.
var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
)

const (
	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	clobAuthMessage   = "This message attests that I control the given wallet"
)

func clobAuthDomainSeparator() common.Hash {
	var buf []byte
	buf = append(buf, eip712DomainTypeHash.Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(polygonChainID).Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// signClobAuth signs the ClobAuth typed data proving wallet ownership.
func (s *Signer) signClobAuth(timestamp string, nonce int64) (string, error) {
	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(s.wallet.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(big.NewInt(nonce).Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	raw := []byte{0x19, 0x01}
	raw = append(raw, clobAuthDomainSeparator().Bytes()...)
	raw = append(raw, structHash.Bytes()...)

	sig, err := crypto.Sign(crypto.Keccak256Hash(raw).Bytes(), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign clob auth: %v: %w", err, domain.ErrSigningFailure)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}
