package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalArgs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		args    []string
		expectT string
		expectG string
		expectO string
	}{
		{nil, "on", "off", "off"},
		{[]string{"off"}, "off", "off", "off"},
		{[]string{"off", "on"}, "off", "on", "off"},
		{[]string{"on", "on", "on"}, "on", "on", "on"},
	}
	for _, tc := range cases {
		threshold, gain, offset := calArgs(tc.args)
		assert.Equal(t, tc.expectT, threshold, "args=%v", tc.args)
		assert.Equal(t, tc.expectG, gain, "args=%v", tc.args)
		assert.Equal(t, tc.expectO, offset, "args=%v", tc.args)
	}
}
