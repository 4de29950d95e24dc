package controller

import (
	"context"
	"errors"
	"fmt"

	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	x402v1alpha1 "github.com/razvanmacovei/x402-crawl-gateway/api/v1alpha1"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/metrics"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/routestore"
)

const finalizerName = "x402.io/finalizer"

// X402RouteReconciler compiles X402Route objects into the gateway's route
// store and puts the gateway in front of the referenced Ingress.
type X402RouteReconciler struct {
	client.Client
	Scheme            *runtime.Scheme
	RouteStore        *routestore.Store
	OperatorNamespace string // namespace where the gateway runs (e.g. "x402-system")
	OperatorSvcName   string // service name of the gateway
}

// +kubebuilder:rbac:groups=x402.io,resources=x402routes,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=x402.io,resources=x402routes/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=x402.io,resources=x402routes/finalizers,verbs=update
// +kubebuilder:rbac:groups=x402.io,resources=publisherlicenses,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=networking.k8s.io,resources=ingresses,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch
// +kubebuilder:rbac:groups=coordination.k8s.io,resources=leases,verbs=get;list;watch;create;update;patch;delete

func (r *X402RouteReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	var route x402v1alpha1.X402Route
	if err := r.Get(ctx, req.NamespacedName, &route); err != nil {
		if apierrors.IsNotFound(err) {
			// Deleted without our finalizer; make sure nothing is served.
			r.forget(req.Namespace, req.Name)
			return ctrl.Result{}, nil
		}
		logger.Error(err, "unable to fetch X402Route")
		return ctrl.Result{}, err
	}

	if !route.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(&route, finalizerName) {
			if err := r.cleanupResources(ctx, &route); err != nil {
				logger.Error(err, "failed to clean up resources")
				return ctrl.Result{}, err
			}
			controllerutil.RemoveFinalizer(&route, finalizerName)
			if err := r.Update(ctx, &route); err != nil {
				return ctrl.Result{}, err
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(&route, finalizerName) {
		controllerutil.AddFinalizer(&route, finalizerName)
		if err := r.Update(ctx, &route); err != nil {
			return ctrl.Result{}, err
		}
	}

	ingress := &networkingv1.Ingress{}
	ingressKey := types.NamespacedName{Name: route.Spec.IngressRef.Name, Namespace: route.IngressNamespace()}
	if err := r.Get(ctx, ingressKey, ingress); err != nil {
		logger.Error(err, "failed to fetch referenced Ingress", "ingress", ingressKey.String())
		r.setCondition(&route, "IngressPatched", metav1.ConditionFalse, "IngressNotFound", err.Error())
		r.updateStatus(ctx, &route, false, false, 0)
		return ctrl.Result{}, err
	}

	compiled, err := compileRoute(&route, extractBackends(ingress))
	if err != nil {
		// A bad spec will not fix itself; wait for the next edit.
		logger.Error(err, "invalid X402Route")
		r.forget(route.Namespace, route.Name)
		r.setCondition(&route, "Ready", metav1.ConditionFalse, "InvalidSpec", err.Error())
		r.updateStatus(ctx, &route, route.Status.IngressPatched, false, 0)
		return ctrl.Result{}, nil
	}

	r.RouteStore.Set(route.Namespace, route.Name, compiled)
	metrics.RouteStoreUpdatesTotal.Inc()
	metrics.ActiveRoutes.Set(float64(r.RouteStore.Count()))

	if err := r.ensureExternalNameService(ctx, ingressKey.Namespace); err != nil {
		logger.Error(err, "failed to create ExternalName service")
		r.setCondition(&route, "ExternalServiceReady", metav1.ConditionFalse, "ServiceError", err.Error())
		r.updateStatus(ctx, &route, false, false, len(compiled.Rules))
		return ctrl.Result{}, err
	}

	if err := r.patchIngress(ctx, &route, ingress); err != nil {
		logger.Error(err, "failed to patch Ingress")
		r.setCondition(&route, "IngressPatched", metav1.ConditionFalse, "PatchError", err.Error())
		r.updateStatus(ctx, &route, false, false, len(compiled.Rules))
		return ctrl.Result{}, err
	}
	r.setCondition(&route, "IngressPatched", metav1.ConditionTrue, "Reconciled", "Ingress routes paid paths through the gateway")
	r.setCondition(&route, "Ready", metav1.ConditionTrue, "Reconciled", "Route is active and serving traffic")
	r.updateStatus(ctx, &route, true, true, len(compiled.Rules))

	logger.Info("reconciliation complete",
		"ingress", ingressKey.String(),
		"publisher", compiled.Publisher,
		"activeRoutes", len(compiled.Rules),
	)
	return ctrl.Result{}, nil
}

func (r *X402RouteReconciler) forget(namespace, name string) {
	if _, ok := r.RouteStore.Get(namespace, name); !ok {
		return
	}
	r.RouteStore.Delete(namespace, name)
	metrics.RouteStoreUpdatesTotal.Inc()
	metrics.ActiveRoutes.Set(float64(r.RouteStore.Count()))
}

// cleanupResources runs on deletion: restore the Ingress, stop serving the
// route and drop the proxy Service when unused.
func (r *X402RouteReconciler) cleanupResources(ctx context.Context, route *x402v1alpha1.X402Route) error {
	logger := log.FromContext(ctx)
	var errs []error

	if err := r.restoreIngress(ctx, route); err != nil {
		errs = append(errs, fmt.Errorf("restore ingress: %w", err))
	}
	r.forget(route.Namespace, route.Name)

	if ns := route.IngressNamespace(); ns != r.OperatorNamespace {
		if err := r.cleanupExternalNameService(ctx, route, ns); err != nil {
			errs = append(errs, fmt.Errorf("cleanup ExternalName service: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("finalizer: cleanup complete")
	return nil
}

func (r *X402RouteReconciler) setCondition(route *x402v1alpha1.X402Route, condType string, status metav1.ConditionStatus, reason, message string) {
	meta.SetStatusCondition(&route.Status.Conditions, metav1.Condition{
		Type:               condType,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: route.Generation,
		LastTransitionTime: metav1.Now(),
	})
}

func (r *X402RouteReconciler) updateStatus(ctx context.Context, route *x402v1alpha1.X402Route, ingressPatched, ready bool, activeRoutes int) {
	route.Status.IngressPatched = ingressPatched
	route.Status.Ready = ready
	route.Status.ActiveRoutes = activeRoutes

	if err := r.Status().Update(ctx, route); err != nil {
		log.FromContext(ctx).Error(err, "failed to update X402Route status")
	}
}

// SetupWithManager sets up the controller with the Manager.
func (r *X402RouteReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&x402v1alpha1.X402Route{}).
		Watches(&networkingv1.Ingress{}, handler.EnqueueRequestsFromMapFunc(r.ingressToX402Routes)).
		Complete(r)
}

// ingressToX402Routes maps an Ingress event to the X402Routes that reference it.
func (r *X402RouteReconciler) ingressToX402Routes(ctx context.Context, obj client.Object) []reconcile.Request {
	ingress, ok := obj.(*networkingv1.Ingress)
	if !ok || ingress.Annotations[annotationManagedBy] != managedByValue {
		return nil
	}

	var routes x402v1alpha1.X402RouteList
	if err := r.List(ctx, &routes); err != nil {
		log.FromContext(ctx).Error(err, "failed to list X402Routes for Ingress watch")
		return nil
	}

	var requests []reconcile.Request
	for _, route := range routes.Items {
		if route.Spec.IngressRef.Name == ingress.Name && route.IngressNamespace() == ingress.Namespace {
			requests = append(requests, reconcile.Request{
				NamespacedName: types.NamespacedName{Name: route.Name, Namespace: route.Namespace},
			})
		}
	}
	return requests
}
