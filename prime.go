package vkc

// PrimeEntryPoint is the entry point of the shipped prime kernel.
const PrimeEntryPoint = "main_cs"

// ResolvePrime is the host reference of the prime kernel: n if n is prime, otherwise 1.
// 0 and 1 map to 1. The divisor search runs down from n/2 and stops at the largest proper
// divisor, at the latest at 1.
func ResolvePrime(n uint32) uint32 {
	if n < 2 {
		return 1
	}
	d := n / 2
	for d > 1 && n%d != 0 {
		d--
	}
	if d <= 1 {
		return n
	}
	return 1
}

// ResolvePrimes applies ResolvePrime to every value.
func ResolvePrimes(values []uint32) []uint32 {
	out := make([]uint32, len(values))
	for i, v := range values {
		out[i] = ResolvePrime(v)
	}
	return out
}
