package common_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github-star-rank/internal/common"
)

// ExampleDo_basic demonstrates basic usage of the retry mechanism.
func ExampleDo_basic() {
	ctx := context.Background()

	err := common.Do(ctx, func() error {
		// Your API call here
		return nil
	})

	if err != nil {
		fmt.Println("Failed:", err)
	}
	// Output:
}

// ExampleDo_withOptions demonstrates retry with custom configuration.
func ExampleDo_withOptions() {
	ctx := context.Background()

	err := common.Do(ctx,
		func() error {
			// Your API call here
			return nil
		},
		common.WithMaxRetries(5),
		common.WithInitialDelay(time.Second),
		common.WithMaxDelay(30*time.Second),
	)

	if err != nil {
		fmt.Println("Failed:", err)
	}
	// Output:
}

// ExampleDo_trendingPage shows the fetcher policy: three attempts, fixed
// two second backoff, only transient failures are retried.
func ExampleDo_trendingPage() {
	ctx := context.Background()

	err := common.Do(ctx,
		func() error {
			resp, err := http.Get("https://github.com/trending?since=weekly")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return &common.HTTPStatusError{StatusCode: resp.StatusCode, URL: resp.Request.URL.String()}
			}
			return nil
		},
		common.WithMaxAttempts(3),
		common.WithFixedBackoff(2*time.Second),
		common.WithRetryIf(common.IsTransient),
	)

	if err != nil {
		fmt.Println("trending page failed:", err)
	}
}

// ExampleDo_permanentError shows that a 404 is not retried.
func ExampleDo_permanentError() {
	attempts := 0
	err := common.Do(context.Background(),
		func() error {
			attempts++
			return &common.HTTPStatusError{StatusCode: http.StatusNotFound, URL: "https://github.com/a/b"}
		},
		common.WithMaxAttempts(3),
		common.WithFixedBackoff(time.Millisecond),
		common.WithRetryIf(common.IsTransient),
	)

	var statusErr *common.HTTPStatusError
	fmt.Println(attempts, errors.As(err, &statusErr))
	// Output: 1 true
}

// ExampleDo_contextTimeout demonstrates using retry with context timeout.
func ExampleDo_contextTimeout() {
	// Create a context with 10 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := common.Do(ctx,
		func() error {
			// Long-running operation
			return errors.New("temporary failure")
		},
		common.WithMaxRetries(10),
		common.WithInitialDelay(time.Second),
	)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fmt.Println("Operation timed out")
		} else {
			fmt.Println("Operation failed:", err)
		}
	}
}
