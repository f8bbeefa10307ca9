package extract

import (
	"context"
	"errors"
	"testing"
)

func TestParamRuleMatch(t *testing.T) {
	t.Parallel()

	rule := ParamRule{Name: "wordpress-category", Contains: []string{"cat=", "paged="}}

	tests := []struct {
		href string
		want bool
	}{
		{"https://a.example/?cat=3&paged=2", true},
		{"https://a.example/?cat=3", false},
		{"https://a.example/?paged=2", false},
	}
	for _, tt := range tests {
		if got := rule.Match(tt.href); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.href, got, tt.want)
		}
	}

	if (ParamRule{Name: "empty"}).Match("anything") {
		t.Error("rule without substrings matched")
	}
}

func TestRulesCompile(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		if _, err := DefaultRules().compile(); err != nil {
			t.Fatalf("compile() error = %v", err)
		}
	})

	t.Run("empty pattern uses the default", func(t *testing.T) {
		t.Parallel()
		r := DefaultRules()
		r.PageTokenPattern = ""
		c, err := r.compile()
		if err != nil {
			t.Fatalf("compile() error = %v", err)
		}
		if c.pageToken.String() != DefaultPageTokenPattern {
			t.Errorf("pattern = %q", c.pageToken.String())
		}
	})

	t.Run("invalid pattern", func(t *testing.T) {
		t.Parallel()
		r := DefaultRules()
		r.PageTokenPattern = "(page="
		if _, err := r.compile(); err == nil {
			t.Error("compile() error = nil, want error")
		}
	})

	t.Run("pattern without groups", func(t *testing.T) {
		t.Parallel()
		r := DefaultRules()
		r.PageTokenPattern = `page=\d+`
		if _, err := r.compile(); err == nil {
			t.Error("compile() error = nil, want error")
		}
	})

	t.Run("engine rejects bad rules", func(t *testing.T) {
		t.Parallel()
		r := DefaultRules()
		r.PageTokenPattern = "("
		if _, err := NewEngine(&fakeLauncher{}, WithRules(r)); err == nil {
			t.Error("NewEngine() error = nil, want error")
		}
	})
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	rules, err := DefaultRules().compile()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		template string
		page     int
		want     string
	}{
		{"https://a.example/?cat=3&paged=2", 5, "https://a.example/?cat=3&paged=5"},
		{"https://a.example/blog/page/2/", 9, "https://a.example/blog/page/9/"},
		{"https://a.example/list?page=12&sort=new", 13, "https://a.example/list?page=13&sort=new"},
		{"https://a.example/list?per=20&p=3", 4, "https://a.example/list?per=20&p=4"},
		{"https://a.example/about", 2, "https://a.example/about"},
	}
	for _, tt := range tests {
		if got := rules.pageURL(tt.template, tt.page); got != tt.want {
			t.Errorf("pageURL(%q, %d) = %q, want %q", tt.template, tt.page, got, tt.want)
		}
	}
}

func TestPageSelectors(t *testing.T) {
	t.Parallel()

	rules, err := DefaultRules().compile()
	if err != nil {
		t.Fatal(err)
	}
	got := rules.pageSelectors(7)
	if len(got) != 2 || got[0] != "a[id='7']" || got[1] != "li.next a[href]" {
		t.Errorf("pageSelectors(7) = %v", got)
	}
}

func TestIsPaginationLink(t *testing.T) {
	t.Parallel()

	rules, err := DefaultRules().compile()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		href string
		want bool
	}{
		{"https://a.example/?cat=3&paged=2", true},
		{"https://a.example/news?category_id=4&page=2", true},
		{"https://a.example/blog/page/3/", true},
		{"https://a.example/search?page=2", true},
		{"https://a.example/list?per=20&p=3", true},
		{"https://a.example/about", false},
	}
	for _, tt := range tests {
		if got := rules.isPaginationLink(tt.href); got != tt.want {
			t.Errorf("isPaginationLink(%q) = %v, want %v", tt.href, got, tt.want)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	r := DefaultRules()
	r.NotFoundMarkers = append(r.NotFoundMarkers, "Nothing Here")
	rules, err := r.compile()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		markup string
		want   bool
	}{
		{"<title>Page Not Found</title>", true},
		{"<h1>Oops! Something went wrong here.</h1>", true},
		{"<p>nothing here</p>", true},
		{"<p>latest stories</p>", false},
	}
	for _, tt := range tests {
		if got := rules.isNotFound(tt.markup); got != tt.want {
			t.Errorf("isNotFound(%q) = %v, want %v", tt.markup, got, tt.want)
		}
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	t.Run("retries transient errors", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := RetryPolicy{MaxAttempts: 3}.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil {
			t.Errorf("Do() error = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		calls := 0
		err := RetryPolicy{MaxAttempts: 3}.Do(context.Background(), func() error {
			calls++
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Do() error = %v, want %v", err, boom)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("missing element is not retried", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := RetryPolicy{MaxAttempts: 3}.Do(context.Background(), func() error {
			calls++
			return ErrElementNotFound
		})
		if !errors.Is(err, ErrElementNotFound) {
			t.Errorf("Do() error = %v", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("zero attempts still tries once", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_ = RetryPolicy{}.Do(context.Background(), func() error {
			calls++
			return errors.New("boom")
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := RetryPolicy{MaxAttempts: 5}.Do(ctx, func() error {
			calls++
			return errors.New("boom")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
