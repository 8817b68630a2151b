package utils

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vgarvardt/gue/v5"
)

type testMsg struct {
	ID string `json:"id"`
}

type testData struct {
	ids []string
	err error
}

func testHandle(ctx context.Context, m *testMsg, d *testData) error {
	d.ids = append(d.ids, m.ID)
	return d.err
}

func TestCreateHandler(t *testing.T) {
	d := &testData{}
	f := CreateHandler(d, testHandle, 2)
	err := f(context.Background(), &gue.Job{Queue: "q", Args: []byte(`{"id":"1"}`)})
	assert.Nil(t, err)
	assert.Equal(t, []string{"1"}, d.ids)
}

func TestCreateHandler_Fail(t *testing.T) {
	d := &testData{err: fmt.Errorf("olia")}
	f := CreateHandler(d, testHandle, 2)
	err := f(context.Background(), &gue.Job{Queue: "q", Args: []byte(`{"id":"1"}`)})
	assert.NotNil(t, err)
}

func TestCreateHandler_Drops(t *testing.T) {
	d := &testData{err: fmt.Errorf("olia")}
	f := CreateHandler(d, testHandle, 2)
	err := f(context.Background(), &gue.Job{Queue: "q", Args: []byte(`{"id":"1"}`), ErrorCount: 3,
		LastError: sql.NullString{String: "olia", Valid: true}})
	assert.Nil(t, err)
	assert.Empty(t, d.ids)
	err = f(context.Background(), &gue.Job{Queue: "q", Args: []byte(`{"id":`)})
	assert.Nil(t, err)
	assert.Empty(t, d.ids)
}
