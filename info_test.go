package oairepo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestInfo(t *testing.T) {
	var tests = []struct {
		about    string
		pageSize int
		sets     bool
		want     []string
	}{
		{"one page", 10, true, []string{"math", "phys"}},
		{"paged", 1, true, []string{"math", "phys"}},
		{"no sets", 10, false, nil},
	}
	for _, test := range tests {
		t.Run(test.about, func(t *testing.T) {
			data := newFakeData(2)
			if !test.sets {
				data.sets = nil
			}
			repo := newTestRepository(data, Config{PageSize: test.pageSize})
			info, err := repo.Info(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "My OAI Repo", info.Identify.RepositoryName)
			assert.Len(t, info.Formats, 2)
			var specs []string
			for _, s := range info.Sets {
				specs = append(specs, s.Spec)
			}
			assert.Equal(t, test.want, specs)
		})
	}
}

func TestInfoFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	data := newFakeData(1)
	data.fail = errors.New("backend down")
	_, err := newTestRepository(data, Config{}).Info(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}
