/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"crypto/tls"
	"flag"
	"fmt"
	"os"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics/filters"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/config"
	"github.com/dc-tec/stream-operator/internal/constants"
	"github.com/dc-tec/stream-operator/internal/controller/streamcluster"
)

const leaderElectionID = "stream-operator-leader.streams.dc-tec.io"

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(streamsv1alpha1.AddToScheme(scheme))
}

// metricsCert locates an optional certificate for the metrics endpoint.
type metricsCert struct {
	path string
	name string
	key  string
}

// parseFlags builds the operator configuration from args and the environment.
// Environment variables win over flags.
func parseFlags(args []string, lookup func(string) (string, bool)) (config.Operator, metricsCert, zap.Options, error) {
	cfg := config.Default()
	var cert metricsCert
	opts := zap.Options{Development: true}

	fs := flag.NewFlagSet("controller", flag.ContinueOnError)
	cfg.BindFlags(fs)
	fs.StringVar(&cert.path, "metrics-cert-path", "",
		"The directory that contains the metrics server certificate.")
	fs.StringVar(&cert.name, "metrics-cert-name", "tls.crt", "The name of the metrics server certificate file.")
	fs.StringVar(&cert.key, "metrics-cert-key", "tls.key", "The name of the metrics server key file.")
	opts.BindFlags(fs)

	if err := fs.Parse(args); err != nil {
		return cfg, cert, opts, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, cert, opts, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, cert, opts, err
	}
	return cfg, cert, opts, nil
}

// metricsOptions configures the metrics server the way the manager serves it.
func metricsOptions(cfg config.Operator, cert metricsCert) metricsserver.Options {
	var tlsOpts []func(*tls.Config)

	// if the enable-http2 flag is false (the default), http/2 should be disabled
	// due to its vulnerabilities. More specifically, disabling http/2 will
	// prevent from being vulnerable to the HTTP/2 Stream Cancellation and
	// Rapid Reset CVEs. For more information see:
	// - https://github.com/advisories/GHSA-qppj-fm5r-hxr3
	// - https://github.com/advisories/GHSA-4374-p667-p6c8
	if !cfg.EnableHTTP2 {
		tlsOpts = append(tlsOpts, func(c *tls.Config) {
			setupLog.Info("disabling http/2")
			c.NextProtos = []string{"http/1.1"}
		})
	}

	opts := metricsserver.Options{
		BindAddress:   cfg.MetricsAddr,
		SecureServing: cfg.SecureMetrics,
		TLSOpts:       tlsOpts,
	}
	if cfg.SecureMetrics {
		// FilterProvider protects the metrics endpoint with authn/authz.
		opts.FilterProvider = filters.WithAuthenticationAndAuthorization
	}
	if cert.path != "" {
		opts.CertDir = cert.path
		opts.CertName = cert.name
		opts.KeyName = cert.key
	}
	return opts
}

// Run starts the StreamCluster controller manager.
func Run(args []string) {
	cfg, cert, opts, err := parseFlags(args, os.LookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	setupLog.Info("Loaded operator configuration",
		"operation_timeout", cfg.OperationTimeout,
		"roller_backoff_base", cfg.RollerBackoffBase,
		"roller_max_attempts", cfg.RollerMaxAttempts,
		"restarts_per_minute", cfg.RestartsPerMinute,
		"operator_namespace", cfg.OperatorNamespace)

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsOptions(cfg, cert),
		HealthProbeBindAddress: cfg.ProbeAddr,
		LeaderElection:         cfg.EnableLeaderElection,
		LeaderElectionID:       leaderElectionID,
		// Health polling after a restart must see the replacement incarnation
		// as soon as the API server does, not when the informer catches up.
		Client: client.Options{
			Cache: &client.CacheOptions{
				DisableFor: []client.Object{
					&corev1.Pod{},
					&appsv1.Deployment{},
				},
			},
		},
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	if err := streamcluster.NewStreamClusterReconciler(mgr.GetClient(), mgr.GetScheme(), cfg).
		SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", constants.ControllerNameStreamCluster)
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting controller manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}
