// Package kubernetes provides a sandbox.Backend that provisions sandbox
// pods through agent-sandbox SandboxClaim CRDs. Each Create makes a claim,
// waits for the bound Sandbox to become Ready, and talks to the
// sandbox-server running in the pod. Kill deletes the claim.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/sandbox"
	"github.com/rhuss/runcode/pkg/sandbox/sandboxserver"
)

// Ensure ClaimBackend implements sandbox.Backend.
var _ sandbox.Backend = (*ClaimBackend)(nil)

// sandboxPort is the port the sandbox-server listens on inside the pod.
const sandboxPort = 8080

// cleanupTimeout bounds deleting a claim whose sandbox never became ready.
const cleanupTimeout = 10 * time.Second

// ClaimBackend implements sandbox.Backend with SandboxClaim CRDs.
type ClaimBackend struct {
	client    client.Client
	template  string
	namespace string
	timeout   time.Duration
	exec      *sandboxserver.Client
}

// NewClaimBackend creates a ClaimBackend. timeout bounds how long Create
// waits for the claimed Sandbox to become ready.
func NewClaimBackend(c client.Client, template, namespace string, timeout time.Duration) *ClaimBackend {
	return &ClaimBackend{
		client:    c,
		template:  template,
		namespace: namespace,
		timeout:   timeout,
		exec:      sandboxserver.NewClient(),
	}
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Name returns "kubernetes".
func (b *ClaimBackend) Name() string { return "kubernetes" }

// Create makes a SandboxClaim and waits for its Sandbox to become ready.
// The claim is deleted again if the sandbox never becomes ready.
func (b *ClaimBackend) Create(ctx context.Context) (sandbox.Sandbox, error) {
	claimName := generateClaimNameFn()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      claimName,
			Namespace: b.namespace,
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{
				Name: b.template,
			},
		},
	}

	if err := b.client.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("create SandboxClaim %q: %w", claimName, err)
	}
	debug.Log("sandbox", "created SandboxClaim", "name", claimName, "namespace", b.namespace, "template", b.template)

	serviceFQDN, err := b.waitForReady(ctx, claimName)
	if err != nil {
		// The caller may be gone already; the claim must still go.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		_ = b.deleteClaim(cleanupCtx, claimName)
		return nil, err
	}

	url := fmt.Sprintf("http://%s:%d", serviceFQDN, sandboxPort)
	debug.Log("sandbox", "sandbox ready", "name", claimName, "url", url)

	release := func(ctx context.Context) error {
		return b.deleteClaim(ctx, claimName)
	}
	return sandboxserver.NewSandbox(claimName, url, b.exec, release), nil
}

// waitForReady polls the Sandbox until its Ready condition is True and a
// service FQDN is published, or the timeout expires.
func (b *ClaimBackend) waitForReady(ctx context.Context, name string) (string, error) {
	deadline := time.After(b.timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for Sandbox %q: %w", name, ctx.Err())
		case <-deadline:
			return "", fmt.Errorf("Sandbox %q not ready after %s: %w", name, b.timeout, sandbox.ErrTimeout)
		case <-ticker.C:
			sb := &sandboxv1alpha1.Sandbox{}
			key := types.NamespacedName{Name: name, Namespace: b.namespace}
			if err := b.client.Get(ctx, key, sb); err != nil {
				// The controller may not have created it yet.
				debug.Log("sandbox", "waiting for Sandbox", "name", name, "error", err.Error())
				continue
			}
			if isReady(sb) && sb.Status.ServiceFQDN != "" {
				return sb.Status.ServiceFQDN, nil
			}
		}
	}
}

func isReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim deletes a SandboxClaim. A claim that is already gone is not
// an error.
func (b *ClaimBackend) deleteClaim(ctx context.Context, name string) error {
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: b.namespace,
		},
	}
	if err := client.IgnoreNotFound(b.client.Delete(ctx, claim)); err != nil {
		slog.Warn("failed to delete SandboxClaim", "name", name, "namespace", b.namespace, "error", err.Error())
		return fmt.Errorf("delete SandboxClaim %q: %w", name, err)
	}
	debug.Log("sandbox", "deleted SandboxClaim", "name", name, "namespace", b.namespace)
	return nil
}

// generateClaimNameFn creates a unique SandboxClaim name. Replaced in tests.
var generateClaimNameFn = func() string {
	return fmt.Sprintf("runcode-%d", time.Now().UnixNano())
}
