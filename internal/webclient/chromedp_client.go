package webclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/webaudit/internal/logging"
)

// ChromedpClient renders pages in a headless browser so checks see the DOM
// after scripts ran. Only GET is supported.
type ChromedpClient struct {
	cfg         Config
	logger      logging.Logger
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

// NewChromedpClient starts a browser. It fails when no Chrome binary is available.
func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromedpClient, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Run with no actions launches the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	componentLogger := logger.With(logging.Field{Key: "backend", Value: string(ClientChromedp)})
	componentLogger.Debug("created chromedp webclient",
		logging.Field{Key: "idle_after", Value: cfg.idleAfter().String()})

	return &ChromedpClient{
		cfg:         cfg,
		logger:      componentLogger,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
	}, nil
}

// waitNetworkIdle signals once no request has been in flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idleChan := make(chan struct{}, 1)
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() {
					idleChan <- struct{}{}
				})
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})

	startTimer()
	return idleChan
}

func (c *ChromedpClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if m := strings.ToUpper(req.Method); m != "" && m != http.MethodGet {
		return nil, fmt.Errorf("method %s not supported by chromedp backend", m)
	}

	tabCtx, cancelTab := chromedp.NewContext(c.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.cfg.timeout())
	defer cancelTimeout()

	// Tie the tab to the caller's context as well.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var (
		docMu      sync.Mutex
		statusCode = http.StatusOK
		headers    = http.Header{}
	)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		docMu.Lock()
		defer docMu.Unlock()
		statusCode = int(e.Response.Status)
		headers = http.Header{}
		for k, v := range e.Response.Headers {
			// Chrome joins repeated headers with newlines.
			for _, part := range strings.Split(fmt.Sprint(v), "\n") {
				headers.Add(k, part)
			}
		}
	})
	idle := waitNetworkIdle(tabCtx, c.cfg.idleAfter())

	c.logger.Debug("rendering page", logging.Field{Key: "url", Value: req.URL})

	if err := chromedp.Run(tabCtx, network.Enable(), chromedp.Navigate(req.URL)); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	select {
	case <-idle:
	case <-tabCtx.Done():
		return nil, fmt.Errorf("waiting for network idle: %w", tabCtx.Err())
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return nil, fmt.Errorf("read rendered html: %w", err)
	}

	docMu.Lock()
	defer docMu.Unlock()
	return &Response{
		Request:    req,
		Headers:    headers,
		Body:       []byte(html),
		StatusCode: statusCode,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *ChromedpClient) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

func (c *ChromedpClient) Close() error {
	c.logger.Debug("closing chromedp webclient")
	c.cancel()
	c.allocCancel()
	return nil
}
