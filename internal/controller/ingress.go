package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	x402v1alpha1 "github.com/razvanmacovei/x402-crawl-gateway/api/v1alpha1"
)

const (
	externalSvcName = "x402-gateway-proxy"
	gatewayPort     = int32(8402)
	managedByValue  = "x402-crawl-gateway"

	annotationOriginalBackends = "x402.io/original-backends"
	annotationManagedBy        = "x402.io/managed-by"
)

// servicePaths calls fn for every Ingress path backed by a Service.
func servicePaths(ingress *networkingv1.Ingress, fn func(p *networkingv1.HTTPIngressPath)) {
	for i := range ingress.Spec.Rules {
		http := ingress.Spec.Rules[i].HTTP
		if http == nil {
			continue
		}
		for j := range http.Paths {
			if http.Paths[j].Backend.Service != nil {
				fn(&http.Paths[j])
			}
		}
	}
}

// originalBackends returns the "service:port" map saved before the first
// patch, or false when the Ingress has not been patched or the annotation is
// unreadable.
func originalBackends(ingress *networkingv1.Ingress) (map[string]string, bool) {
	stored, ok := ingress.Annotations[annotationOriginalBackends]
	if !ok {
		return nil, false
	}
	var saved map[string]string
	if err := json.Unmarshal([]byte(stored), &saved); err != nil {
		log.Log.Error(err, "corrupted original-backends annotation, re-reading Ingress rules",
			"ingress", ingress.Name, "namespace", ingress.Namespace)
		return nil, false
	}
	return saved, true
}

// extractBackends maps each Ingress path to the in-cluster URL of the
// service that served it before the gateway was put in front.
func extractBackends(ingress *networkingv1.Ingress) map[string]string {
	backends := make(map[string]string)
	if saved, ok := originalBackends(ingress); ok {
		for path, svcPort := range saved {
			if name, port, ok := strings.Cut(svcPort, ":"); ok {
				backends[path] = serviceURL(name, ingress.Namespace, port)
			}
		}
		return backends
	}

	servicePaths(ingress, func(p *networkingv1.HTTPIngressPath) {
		port := resolveBackendPort(p.Backend.Service.Port)
		backends[p.Path] = serviceURL(p.Backend.Service.Name, ingress.Namespace, strconv.Itoa(int(port)))
	})
	return backends
}

func serviceURL(name, namespace, port string) string {
	return fmt.Sprintf("http://%s.%s.svc.cluster.local:%s", name, namespace, port)
}

// resolveBackendPort returns the port number of a service backend. Named
// ports are not resolved and fall back to 80.
func resolveBackendPort(port networkingv1.ServiceBackendPort) int32 {
	if port.Number != 0 {
		return port.Number
	}
	if port.Name != "" {
		log.Log.Info("ingress backend uses port name, defaulting to 80", "portName", port.Name)
	}
	return 80
}

// ensureExternalNameService lets an Ingress in another namespace reach the
// gateway through a local ExternalName Service.
func (r *X402RouteReconciler) ensureExternalNameService(ctx context.Context, namespace string) error {
	if namespace == r.OperatorNamespace {
		return nil
	}

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: externalSvcName, Namespace: namespace},
	}
	op, err := controllerutil.CreateOrUpdate(ctx, r.Client, svc, func() error {
		svc.Labels = map[string]string{"app.kubernetes.io/managed-by": managedByValue}
		svc.Spec.Type = corev1.ServiceTypeExternalName
		svc.Spec.ExternalName = fmt.Sprintf("%s.%s.svc.cluster.local", r.OperatorSvcName, r.OperatorNamespace)
		svc.Spec.Selector = nil
		svc.Spec.ClusterIP = ""
		svc.Spec.Ports = []corev1.ServicePort{{Name: "http", Port: gatewayPort, Protocol: corev1.ProtocolTCP}}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure ExternalName service in %s: %w", namespace, err)
	}
	log.FromContext(ctx).Info("ExternalName service reconciled", "namespace", namespace, "operation", op)
	return nil
}

// patchIngress points the Ingress paths that carry paid content at the
// gateway, saving the original backends first.
func (r *X402RouteReconciler) patchIngress(ctx context.Context, route *x402v1alpha1.X402Route, ingress *networkingv1.Ingress) error {
	if ingress.Annotations == nil {
		ingress.Annotations = make(map[string]string)
	}
	if _, ok := originalBackends(ingress); !ok {
		saved := make(map[string]string)
		servicePaths(ingress, func(p *networkingv1.HTTPIngressPath) {
			saved[p.Path] = fmt.Sprintf("%s:%d", p.Backend.Service.Name, resolveBackendPort(p.Backend.Service.Port))
		})
		data, err := json.Marshal(saved)
		if err != nil {
			return fmt.Errorf("marshal original backends: %w", err)
		}
		ingress.Annotations[annotationOriginalBackends] = string(data)
	}
	ingress.Annotations[annotationManagedBy] = managedByValue

	gatewaySvc := externalSvcName
	if ingress.Namespace == r.OperatorNamespace {
		gatewaySvc = r.OperatorSvcName
	}
	paid := paidPaths(route)
	servicePaths(ingress, func(p *networkingv1.HTTPIngressPath) {
		if coversPaidPath(p.Path, paid) {
			p.Backend = networkingv1.IngressBackend{
				Service: &networkingv1.IngressServiceBackend{
					Name: gatewaySvc,
					Port: networkingv1.ServiceBackendPort{Number: gatewayPort},
				},
			}
		}
	})

	if err := r.Update(ctx, ingress); err != nil {
		return fmt.Errorf("update ingress: %w", err)
	}
	log.FromContext(ctx).Info("ingress patched", "name", ingress.Name, "namespace", ingress.Namespace, "paidPaths", len(paid))
	return nil
}

// paidPaths lists rule paths that can require payment. Conditional rules
// count, since the decision depends on the request.
func paidPaths(route *x402v1alpha1.X402Route) []string {
	var paths []string
	for _, rule := range route.Spec.Routes {
		if !rule.Free {
			paths = append(paths, rule.Path)
		}
	}
	return paths
}

// coversPaidPath reports whether traffic for an Ingress path can reach one
// of the paid rule paths.
func coversPaidPath(ingressPath string, paid []string) bool {
	ing := trimPattern(strings.TrimSuffix(ingressPath, "(.*)"))
	for _, p := range paid {
		if ingressPath == p {
			return true
		}
		rule := trimPattern(p)
		if ing == rule || ing == "/" || rule == "/" {
			return true
		}
		if strings.HasPrefix(rule, ing+"/") || strings.HasPrefix(ing, rule+"/") {
			return true
		}
	}
	return false
}

// trimPattern drops trailing wildcards and slashes: "/api/**" -> "/api".
func trimPattern(p string) string {
	p = strings.TrimSuffix(p, "/**")
	p = strings.TrimSuffix(p, "/*")
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

// restoreIngress puts the saved backends back and removes the gateway's
// annotations.
func (r *X402RouteReconciler) restoreIngress(ctx context.Context, route *x402v1alpha1.X402Route) error {
	ingress := &networkingv1.Ingress{}
	key := types.NamespacedName{Name: route.Spec.IngressRef.Name, Namespace: route.IngressNamespace()}
	if err := r.Get(ctx, key, ingress); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("get ingress for restore: %w", err)
	}

	saved, ok := originalBackends(ingress)
	if !ok {
		return nil
	}
	servicePaths(ingress, func(p *networkingv1.HTTPIngressPath) {
		name, portStr, ok := strings.Cut(saved[p.Path], ":")
		if !ok {
			return
		}
		port := int32(80)
		if n, err := strconv.ParseInt(portStr, 10, 32); err == nil {
			port = int32(n)
		}
		p.Backend = networkingv1.IngressBackend{
			Service: &networkingv1.IngressServiceBackend{
				Name: name,
				Port: networkingv1.ServiceBackendPort{Number: port},
			},
		}
	})
	delete(ingress.Annotations, annotationOriginalBackends)
	delete(ingress.Annotations, annotationManagedBy)

	if err := r.Update(ctx, ingress); err != nil {
		return fmt.Errorf("restore ingress: %w", err)
	}
	log.FromContext(ctx).Info("ingress restored", "name", ingress.Name)
	return nil
}

// cleanupExternalNameService removes the proxy Service once no other route
// routes through its namespace.
func (r *X402RouteReconciler) cleanupExternalNameService(ctx context.Context, route *x402v1alpha1.X402Route, namespace string) error {
	var routes x402v1alpha1.X402RouteList
	if err := r.List(ctx, &routes); err != nil {
		return err
	}
	for _, other := range routes.Items {
		if other.Name == route.Name && other.Namespace == route.Namespace {
			continue
		}
		if other.IngressNamespace() == namespace {
			return nil
		}
	}

	svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: externalSvcName, Namespace: namespace}}
	if err := r.Delete(ctx, svc); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	return nil
}
