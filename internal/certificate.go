package internal

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"time"
)

/*
Carrega o certificado e a chave PEM usados para servir wss://
*/
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("error reading certificate file: %w", err)
	}
	key, err := ReadCertificateKey(keyFile)
	if err != nil {
		return nil, err
	}

	var pair tls.Certificate
	for block, rest := pem.Decode(certPEM); block != nil; block, rest = pem.Decode(rest) {
		if block.Type == "CERTIFICATE" {
			pair.Certificate = append(pair.Certificate, block.Bytes)
		}
	}
	if len(pair.Certificate) == 0 {
		return nil, fmt.Errorf("no certificate found in %s", certFile)
	}

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	pub, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(key.Public()) {
		return nil, fmt.Errorf("certificate and key do not match")
	}
	if time.Now().After(leaf.NotAfter) {
		slog.Warn("serving an expired certificate", "subject", leaf.Subject.String(), "not_after", leaf.NotAfter)
	}
	pair.PrivateKey = key
	pair.Leaf = leaf

	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

/*
Lê a chave privada do certificado PEM (PKCS#8, PKCS#1 ou SEC 1)
*/
func ReadCertificateKey(filename string) (crypto.Signer, error) {
	certKeyBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading certificate key file: %w", err)
	}

	block, _ := pem.Decode(certKeyBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("certificate key of type %T can not sign", key)
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("certificate key in %s isn't a supported private key", filename)
}
