// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

//go:build integration

package e2e_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestE2E(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Compile-Cache Integration Suite")
}
