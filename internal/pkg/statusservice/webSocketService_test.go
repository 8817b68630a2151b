package statusservice

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jamjock/jamjock/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	wsService *WSConnKeeper
)

func initWSTest(t *testing.T) {
	t.Helper()
	wsService = NewWSConnKeeper(0)
}

func createTestConn(t *testing.T, msg string, closeChan <-chan struct{}) *mockWSConn {
	t.Helper()
	connWSMock := &mockWSConn{}
	connWSMock.On("WriteJSON", mock.Anything).Return(nil)
	connWSMock.On("ReadMessage").Return(1, []byte(msg), nil).Once()
	connWSMock.On("ReadMessage").Return(1, []byte{}, fmt.Errorf("err")).Run(func(args mock.Arguments) {
		<-closeChan
	})
	connWSMock.On("Close").Return(nil)
	return connWSMock
}

func testHas(t *testing.T, s string, i int) {
	t.Helper()
	ctx := test.Ctx(t)
	for {
		cn, ok := wsService.GetConnections(s)
		if ok == (i > 0) && len(cn) == i {
			break
		}
		select {
		case <-ctx.Done():
			require.Failf(t, "timeout", "not found connection %s", s)
		case <-time.After(time.Millisecond * 100):
		}
	}
}

func Test_HandleConnection(t *testing.T) {
	initWSTest(t)
	closeCtx, cf := context.WithCancel(test.Ctx(t))
	defer cf()
	go func() {
		err := wsService.HandleConnection(createTestConn(t, "1", closeCtx.Done()))
		assert.Nil(t, err)
	}()
	testHas(t, "1", 1)
}

func Test_HandleConnection_SeveralSongs(t *testing.T) {
	initWSTest(t)
	closeCtx, cf := context.WithCancel(test.Ctx(t))
	defer cf()
	go func() {
		err := wsService.HandleConnection(createTestConn(t, " 1, 2,,2 ", closeCtx.Done()))
		assert.Nil(t, err)
	}()
	testHas(t, "1", 1)
	testHas(t, "2", 1)
}

func Test_HandleConnection_Several(t *testing.T) {
	initWSTest(t)
	closeCtx, cf := context.WithCancel(test.Ctx(t))
	defer cf()
	for i := 0; i < 10; i++ {
		go func() {
			err := wsService.HandleConnection(createTestConn(t, "1", closeCtx.Done()))
			assert.Nil(t, err)
		}()
	}
	testHas(t, "1", 10)
}

func Test_HandleConnection_Cleans(t *testing.T) {
	initWSTest(t)
	closeCtx, cf := context.WithCancel(test.Ctx(t))
	for i := 0; i < 10; i++ {
		_i := i
		go func() {
			err := wsService.HandleConnection(createTestConn(t, fmt.Sprintf("%d", _i), closeCtx.Done()))
			assert.Nil(t, err)
		}()
	}
	testHas(t, "1", 1)
	cf()
	for i := 0; i < 10; i++ {
		testHas(t, fmt.Sprintf("%d", i), 0)
	}
}

func Test_HandleConnection_Timeout(t *testing.T) {
	wsService = NewWSConnKeeper(time.Millisecond * 200)
	closeCtx, cf := context.WithCancel(test.Ctx(t))
	defer cf()
	done := make(chan struct{})
	go func() {
		err := wsService.HandleConnection(createTestConn(t, "1", closeCtx.Done()))
		assert.Nil(t, err)
		close(done)
	}()
	select {
	case <-done:
	case <-test.Ctx(t).Done():
		require.Fail(t, "no timeout")
	}
	testHas(t, "1", 0)
}

func Test_parseIDs(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, parseIDs("1, 2,1", 10))
	assert.Equal(t, []string{"1"}, parseIDs("1,2,3", 1))
	assert.Nil(t, parseIDs(" , ", 10))
}
