// File: internal/kube/secrets.go
// Brief: Secret and service-account link operations.

package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func (o *clusterOps) GetSecret(ctx context.Context, name string) (*corev1.Secret, error) {
	secret, err := o.client.Clientset.CoreV1().Secrets(o.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get secret %q: %w", name, err)
	}
	return secret, nil
}

func (o *clusterOps) UpsertSecret(ctx context.Context, secret *corev1.Secret) error {
	secrets := o.client.Clientset.CoreV1().Secrets(o.namespace)
	existing, err := secrets.Get(ctx, secret.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := secrets.Create(ctx, secret, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("create secret %q: %w", secret.Name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("get secret %q: %w", secret.Name, err)
	}

	updated := existing.DeepCopy()
	updated.Type = secret.Type
	updated.Data = secret.Data
	updated.StringData = secret.StringData
	if _, err := secrets.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update secret %q: %w", secret.Name, err)
	}
	return nil
}

func (o *clusterOps) LinkSecret(ctx context.Context, serviceAccount, secretName string) error {
	accounts := o.client.Clientset.CoreV1().ServiceAccounts(o.namespace)
	sa, err := accounts.Get(ctx, serviceAccount, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get service account %q: %w", serviceAccount, err)
	}

	changed := false
	if !hasPullSecret(sa, secretName) {
		sa.ImagePullSecrets = append(sa.ImagePullSecrets, corev1.LocalObjectReference{Name: secretName})
		changed = true
	}
	if !hasMountSecret(sa, secretName) {
		sa.Secrets = append(sa.Secrets, corev1.ObjectReference{Name: secretName})
		changed = true
	}
	if !changed {
		return nil
	}
	if _, err := accounts.Update(ctx, sa, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("link secret %q to service account %q: %w", secretName, serviceAccount, err)
	}
	return nil
}

func hasPullSecret(sa *corev1.ServiceAccount, name string) bool {
	for _, ref := range sa.ImagePullSecrets {
		if ref.Name == name {
			return true
		}
	}
	return false
}

func hasMountSecret(sa *corev1.ServiceAccount, name string) bool {
	for _, ref := range sa.Secrets {
		if ref.Name == name {
			return true
		}
	}
	return false
}
