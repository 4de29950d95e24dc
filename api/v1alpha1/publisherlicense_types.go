package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// PublisherLicenseSpec defines a publisher's standing grant to be served
// through the gateway. It is written by the publisher-management service;
// the gateway only reads it.
type PublisherLicenseSpec struct {
	// Owner is the publisher's owner address.
	Owner string `json:"owner"`

	// Active reports whether the license is currently granted.
	Active bool `json:"active"`

	// ExpiresAt is the optional end of the grant.
	// +optional
	ExpiresAt *metav1.Time `json:"expiresAt,omitempty"`
}

// PublisherLicenseStatus defines the observed state of PublisherLicense.
type PublisherLicenseStatus struct {
	// LastUpdated is when the publisher-management service last changed the grant.
	// +optional
	LastUpdated *metav1.Time `json:"lastUpdated,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster
// +kubebuilder:printcolumn:name="Owner",type="string",JSONPath=".spec.owner"
// +kubebuilder:printcolumn:name="Active",type="boolean",JSONPath=".spec.active"
// +kubebuilder:printcolumn:name="Expires",type="date",JSONPath=".spec.expiresAt"

// PublisherLicense is the Schema for the publisherlicenses API.
type PublisherLicense struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   PublisherLicenseSpec   `json:"spec,omitempty"`
	Status PublisherLicenseStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// PublisherLicenseList contains a list of PublisherLicense.
type PublisherLicenseList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []PublisherLicense `json:"items"`
}

func init() {
	SchemeBuilder.Register(&PublisherLicense{}, &PublisherLicenseList{})
}
