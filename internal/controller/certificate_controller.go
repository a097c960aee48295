package controller

import (
	"certlearn_backend/internal/service"
	"certlearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// CertificateController 证书查询与外部验证
type CertificateController struct {
	CertService *service.CertificateService
}

func NewCertificateController(certService *service.CertificateService) *CertificateController {
	return &CertificateController{CertService: certService}
}

// ListMyCertificates godoc
// @Summary 当前学员的证书列表
// @Tags 证书
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Certificate}
// @Router /api/certificates [get]
func (c *CertificateController) ListMyCertificates(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	certs, err := c.CertService.ListByUser(claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, certs)
}

// VerifyCertificate godoc
// @Summary 按序列号验证证书
// @Description 公开接口，供第三方核验证书真伪
// @Tags 证书
// @Produce json
// @Param serial path string true "证书序列号"
// @Success 200 {object} util.Response{data=model.Certificate}
// @Failure 404 {object} util.Response "证书不存在"
// @Router /api/certificates/verify/{serial} [get]
func (c *CertificateController) VerifyCertificate(ctx *gin.Context) {
	cert, err := c.CertService.GetBySerial(ctx.Param("serial"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, cert)
}
