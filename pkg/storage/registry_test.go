package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	Register(DriverRegistration{
		Info: DriverInfo{Name: "memtest", DisplayName: "In-Memory Test"},
		Open: func(context.Context, string) (Executor, error) { return nil, nil },
	})

	assert.True(t, IsRegistered("memtest"))
	assert.False(t, IsRegistered("nope"))

	drivers := RegisteredDrivers()
	names := make([]string, 0, len(drivers))
	for _, d := range drivers {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "memtest")

	_, err := Open(context.Background(), "nope", "dsn://")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestRecordClone(t *testing.T) {
	rec := Record{"id": 1, "title": "x"}
	clone := rec.Clone()
	clone["title"] = "y"

	assert.Equal(t, "x", rec["title"])
	assert.Nil(t, Record(nil).Clone())
}
