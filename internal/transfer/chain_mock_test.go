package transfer

import (
	"context"
	"math/big"

	"github.com/gabapcia/availkit/internal/infra/blockchain/avail"
	"github.com/gabapcia/availkit/internal/pkg/types"

	"github.com/stretchr/testify/mock"
)

// ChainMock is a testify mock of Chain.
type ChainMock struct {
	mock.Mock
}

// NewChainMock creates a ChainMock whose expectations are asserted when
// the test ends.
func NewChainMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *ChainMock {
	m := &ChainMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

type ChainMock_Expecter struct {
	mock *mock.Mock
}

func (m *ChainMock) EXPECT() *ChainMock_Expecter {
	return &ChainMock_Expecter{mock: &m.Mock}
}

func (m *ChainMock) SS58Format() uint16 {
	ret := m.Called()
	return ret.Get(0).(uint16)
}

type ChainMock_SS58Format_Call struct {
	*mock.Call
}

func (e *ChainMock_Expecter) SS58Format() *ChainMock_SS58Format_Call {
	return &ChainMock_SS58Format_Call{Call: e.mock.On("SS58Format")}
}

func (c *ChainMock_SS58Format_Call) Return(format uint16) *ChainMock_SS58Format_Call {
	c.Call.Return(format)
	return c
}

func (m *ChainMock) AccountNextIndex(ctx context.Context, address string) (uint64, error) {
	ret := m.Called(ctx, address)
	return ret.Get(0).(uint64), ret.Error(1)
}

type ChainMock_AccountNextIndex_Call struct {
	*mock.Call
}

func (e *ChainMock_Expecter) AccountNextIndex(ctx any, address any) *ChainMock_AccountNextIndex_Call {
	return &ChainMock_AccountNextIndex_Call{Call: e.mock.On("AccountNextIndex", ctx, address)}
}

func (c *ChainMock_AccountNextIndex_Call) Return(nonce uint64, err error) *ChainMock_AccountNextIndex_Call {
	c.Call.Return(nonce, err)
	return c
}

func (m *ChainMock) TransferCall(dest avail.AccountID, amount *big.Int) (avail.Call, error) {
	ret := m.Called(dest, amount)
	return ret.Get(0).(avail.Call), ret.Error(1)
}

type ChainMock_TransferCall_Call struct {
	*mock.Call
}

func (e *ChainMock_Expecter) TransferCall(dest any, amount any) *ChainMock_TransferCall_Call {
	return &ChainMock_TransferCall_Call{Call: e.mock.On("TransferCall", dest, amount)}
}

func (c *ChainMock_TransferCall_Call) Return(call avail.Call, err error) *ChainMock_TransferCall_Call {
	c.Call.Return(call, err)
	return c
}

func (m *ChainMock) SignAndSubmit(ctx context.Context, call avail.Call, signer avail.Signer, opts avail.SignOptions) (types.H256, error) {
	ret := m.Called(ctx, call, signer, opts)
	return ret.Get(0).(types.H256), ret.Error(1)
}

type ChainMock_SignAndSubmit_Call struct {
	*mock.Call
}

func (e *ChainMock_Expecter) SignAndSubmit(ctx any, call any, signer any, opts any) *ChainMock_SignAndSubmit_Call {
	return &ChainMock_SignAndSubmit_Call{Call: e.mock.On("SignAndSubmit", ctx, call, signer, opts)}
}

func (c *ChainMock_SignAndSubmit_Call) Return(hash types.H256, err error) *ChainMock_SignAndSubmit_Call {
	c.Call.Return(hash, err)
	return c
}

func (m *ChainMock) SignAndWatch(ctx context.Context, call avail.Call, signer avail.Signer, opts avail.SignOptions) (*avail.ExtrinsicWatch, error) {
	ret := m.Called(ctx, call, signer, opts)
	w, _ := ret.Get(0).(*avail.ExtrinsicWatch)
	return w, ret.Error(1)
}

type ChainMock_SignAndWatch_Call struct {
	*mock.Call
}

func (e *ChainMock_Expecter) SignAndWatch(ctx any, call any, signer any, opts any) *ChainMock_SignAndWatch_Call {
	return &ChainMock_SignAndWatch_Call{Call: e.mock.On("SignAndWatch", ctx, call, signer, opts)}
}

func (c *ChainMock_SignAndWatch_Call) Return(w *avail.ExtrinsicWatch, err error) *ChainMock_SignAndWatch_Call {
	c.Call.Return(w, err)
	return c
}
