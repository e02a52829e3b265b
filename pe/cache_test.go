// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCache(t *testing.T) {
	c := NewMapCache()
	_, ok := c.Lookup(0x1000)
	assert.False(t, ok)

	for _, base := range []uint64{0x3000, 0x1000, 0x2000} {
		c.Insert(&Page{Base: base, data: []byte{byte(base >> 12)}})
	}
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []uint64{0x1000, 0x2000, 0x3000}, c.Bases())

	p, ok := c.Lookup(0x2000)
	require.True(t, ok)
	assert.Equal(t, []byte{2}, p.Bytes())

	c.Insert(&Page{Base: 0x2000, data: []byte{9}})
	assert.Equal(t, 3, c.Len())
	p, _ = c.Lookup(0x2000)
	assert.Equal(t, []byte{9}, p.Bytes())
}

// recordingCache counts calls and can forget everything to simulate
// eviction.
type recordingCache struct {
	*MapCache
	lookups, inserts int
}

func (c *recordingCache) Lookup(base uint64) (*Page, bool) {
	c.lookups++
	return c.MapCache.Lookup(base)
}

func (c *recordingCache) Insert(p *Page) {
	c.inserts++
	c.MapCache.Insert(p)
}

func TestCustomPageCache(t *testing.T) {
	var rc *recordingCache
	opts := &Options{
		NewCache: func() PageCache {
			rc = &recordingCache{MapCache: NewMapCache()}
			return rc
		},
	}
	img := scenarioImage()
	as, cr := addressSpace(t, img, opts)

	_, err := as.Read(0x401000, 0x10)
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, 1, rc.lookups)
	assert.Equal(t, 1, rc.inserts)

	_, err = as.Read(0x401010, 0x10)
	require.NoError(t, err)
	assert.Equal(t, 2, rc.lookups)
	assert.Equal(t, 1, rc.inserts)

	// Evicted pages are reloaded transparently.
	rc.MapCache = NewMapCache()
	got, err := as.Read(0x401020, 0x10)
	require.NoError(t, err)
	assert.Equal(t, img.Sections[0].Data[0x20:0x30], got)
	assert.Equal(t, 2, rc.inserts)
	assert.Equal(t, int64(2), cr.reads.Load())
}
