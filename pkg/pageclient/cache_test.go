package pageclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachingClientMemoizesListings(t *testing.T) {
	ctx := context.Background()
	mock := &Mock{
		SeasonsFunc: func(ctx context.Context) ([]SeasonRef, error) {
			return []SeasonRef{{Name: "Fall 2024", Year: "2024", URL: testBaseURL + "/fashion-shows/fall-2024"}}, nil
		},
		DesignersFunc: func(ctx context.Context, seasonURL string) ([]DesignerRef, error) {
			return []DesignerRef{{Name: "Acme", URL: seasonURL + "/acme"}}, nil
		},
	}

	client, err := NewCachingClient(mock, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		seasons, err := client.FetchSeasons(ctx)
		require.NoError(t, err)
		assert.Len(t, seasons, 1)
	}
	assert.Equal(t, 1, mock.Calls("FetchSeasons"))

	// Distinct season URLs get distinct cache entries.
	for i := 0; i < 2; i++ {
		_, err = client.FetchDesigners(ctx, testBaseURL+"/fashion-shows/fall-2024")
		require.NoError(t, err)
	}
	_, err = client.FetchDesigners(ctx, testBaseURL+"/fashion-shows/spring-2025")
	require.NoError(t, err)
	assert.Equal(t, 2, mock.Calls("FetchDesigners"))
}

func TestCachingClientDoesNotCacheGalleries(t *testing.T) {
	ctx := context.Background()
	mock := &Mock{
		LooksFunc: func(ctx context.Context, designerURL string) (*Gallery, error) {
			return &Gallery{SlideshowURL: designerURL + "/slideshow/collection", TotalLooks: 1}, nil
		},
	}

	client, err := NewCachingClient(mock, 8)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = client.FetchLooks(ctx, testBaseURL+"/acme")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, mock.Calls("FetchLooks"))
}

func TestCachingClientDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	calls := 0
	mock := &Mock{
		SeasonsFunc: func(ctx context.Context) ([]SeasonRef, error) {
			calls++
			if calls == 1 {
				return nil, assert.AnError
			}
			return []SeasonRef{{Name: "Fall 2024", Year: "2024", URL: testBaseURL + "/x"}}, nil
		},
	}

	client, err := NewCachingClient(mock, 8)
	require.NoError(t, err)

	_, err = client.FetchSeasons(ctx)
	require.Error(t, err)

	seasons, err := client.FetchSeasons(ctx)
	require.NoError(t, err)
	assert.Len(t, seasons, 1)
}

func TestCachingClientReportsCacheOutcomes(t *testing.T) {
	ctx := context.Background()
	mock := &Mock{
		SeasonsFunc: func(ctx context.Context) ([]SeasonRef, error) {
			return []SeasonRef{{Name: "Fall 2024", Year: "2024", URL: testBaseURL + "/x"}}, nil
		},
	}

	client, err := NewCachingClient(mock, 8)
	require.NoError(t, err)

	outcomes := map[string]int{}
	client.observer = func(clientName, result string) {
		outcomes[clientName+"/"+result]++
	}

	_, err = client.FetchSeasons(ctx)
	require.NoError(t, err)
	_, err = client.FetchSeasons(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, outcomes["cache/miss"])
	assert.Equal(t, 1, outcomes["cache/hit"])
}

func TestCachingClientClose(t *testing.T) {
	mock := &Mock{}
	client, err := NewCachingClient(mock, 8)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.True(t, mock.Closed())
}
