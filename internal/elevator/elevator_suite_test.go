package elevator_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestElevator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Elevator Suite")
}
