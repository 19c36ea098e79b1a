//go:build !ci

package colorplay_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	dockerImage           = "chromedp/headless-shell:stable"
	chromeContainerPrefix = "chrome-e2e-colorplay-"
)

// browser is a headless Chrome for one test, local when installed and in
// Docker otherwise. inDocker reports whether page URLs need rewriting.
type browser struct {
	ctx      context.Context
	inDocker bool
}

// newBrowser starts Chrome and registers its teardown with t. The test is
// skipped when neither a local Chrome nor Docker is available.
func newBrowser(t *testing.T, timeout time.Duration) *browser {
	t.Helper()

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	b := &browser{}

	if path := localChrome(); path != "" {
		opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(path))
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	} else {
		port := startDockerChrome(t)
		b.inDocker = true
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), fmt.Sprintf("http://localhost:%d", port))
	}

	ctx, ctxCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(t.Logf))
	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	t.Cleanup(func() {
		timeoutCancel()
		ctxCancel()
		allocCancel()
	})
	b.ctx = ctx
	return b
}

// URL rewrites an httptest URL so the browser can reach it. Chrome in
// Docker shares the host network on Linux and uses host.docker.internal
// elsewhere.
func (b *browser) URL(serverURL string) string {
	host := "localhost"
	if b.inDocker && runtime.GOOS != "linux" {
		host = "host.docker.internal"
	}
	for _, loopback := range []string{"127.0.0.1", "[::1]"} {
		serverURL = strings.Replace(serverURL, loopback, host, 1)
	}
	return serverURL
}

func localChrome() string {
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// freePort asks the kernel for a free open port that is ready to use.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// startDockerChrome runs the headless-shell container and waits until its
// debugging endpoint answers. It returns the debugging port.
func startDockerChrome(t *testing.T) int {
	t.Helper()
	if _, err := exec.Command("docker", "version").CombinedOutput(); err != nil {
		t.Skip("neither Chrome nor Docker available, skipping browser test")
	}

	port := freePort(t)
	name := fmt.Sprintf("%s%d", chromeContainerPrefix, port)
	_, _ = exec.Command("docker", "rm", "-f", name).CombinedOutput()

	if _, err := exec.Command("docker", "image", "inspect", dockerImage).CombinedOutput(); err != nil {
		t.Log("Pulling chromedp/headless-shell Docker image...")
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if out, err := exec.CommandContext(ctx, "docker", "pull", dockerImage).CombinedOutput(); err != nil {
			t.Fatalf("pull %s: %v\n%s", dockerImage, err, out)
		}
	}

	// --network host does not expose ports on macOS, where Docker runs in a
	// VM; map the container's default 9222 instead.
	args := []string{"run", "-d", "--rm", "--memory", "512m", "--name", name}
	if runtime.GOOS == "linux" {
		args = append(args, "--network", "host", dockerImage, fmt.Sprintf("--remote-debugging-port=%d", port))
	} else {
		args = append(args, "-p", fmt.Sprintf("%d:9222", port), dockerImage)
	}
	if out, err := exec.Command("docker", args...).CombinedOutput(); err != nil {
		t.Fatalf("start Chrome container: %v\n%s", err, out)
	}
	t.Cleanup(func() {
		_, _ = exec.Command("docker", "rm", "-f", name).CombinedOutput()
	})

	client := &http.Client{Timeout: 2 * time.Second}
	endpoint := fmt.Sprintf("http://localhost:%d/json/version", port)
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(endpoint)
		if err == nil {
			resp.Body.Close()
			return port
		}
		time.Sleep(500 * time.Millisecond)
	}

	if out, err := exec.Command("docker", "logs", "--tail", "50", name).CombinedOutput(); err == nil {
		t.Logf("Chrome container logs:\n%s", out)
	}
	t.Fatalf("Chrome did not start within 60 seconds")
	return 0
}
